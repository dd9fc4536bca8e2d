package diag

// Reporter — минимальный контракт получения диагностик от фаз.
type Reporter interface {
	Report(code Code, sev Severity, primary Location, msg string)
}

// BagReporter — адаптер, который пишет в *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, primary Location, msg string) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{Severity: sev, Code: code, Message: msg, Primary: primary})
}

// ModuleReporter stamps the module path onto every location before forwarding.
type ModuleReporter struct {
	Module string
	Next   Reporter
}

func (r ModuleReporter) Report(code Code, sev Severity, primary Location, msg string) {
	if r.Next == nil {
		return
	}
	if primary.Module == "" {
		primary.Module = r.Module
	}
	r.Next.Report(code, sev, primary, msg)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Code, Severity, Location, string) {}
