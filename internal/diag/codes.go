package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// Деградация имени: сайт инструментирован, но имя неполное
	NameInfo         Code = 1000
	NameNoDebugLoc   Code = 1001
	NameNotRecovered Code = 1002
	NameLineTooLarge Code = 1003

	// Пропущенные сайты: инструментировать нельзя
	SiteInfo           Code = 2000
	SiteVoidProducer   Code = 2001
	SiteAllocatorArity Code = 2002
	SiteAlreadyHandled Code = 2003
	SiteIndirectCallee Code = 2004
	SiteAllocatorShape Code = 2005
)

var codeDescription = map[Code]string{
	UnknownCode:        "Unknown diagnostic",
	NameInfo:           "Name recovery information",
	NameNoDebugLoc:     "Call has no debug location",
	NameNotRecovered:   "Variable name not recovered from source line",
	NameLineTooLarge:   "Debug line number out of range",
	SiteInfo:           "Call site information",
	SiteVoidProducer:   "Producer call returns void",
	SiteAllocatorArity: "Allocator call has too few arguments",
	SiteAlreadyHandled: "Allocation already registered",
	SiteIndirectCallee: "Recognized symbol used outside a direct call",
	SiteAllocatorShape: "Allocator call has an unexpected signature",
}

func (c Code) ID() string {
	if c == UnknownCode {
		return "NDT0000"
	}
	return fmt.Sprintf("NDT%04d", int(c))
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
