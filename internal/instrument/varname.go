package instrument

import "strings"

// ExtractVariable recovers the assigned variable from a source line of the
// form "[type] name = <producer>(...)". Tokens are split on whitespace; the
// token right before the first standalone "=" is the name, provided the
// token right after it starts with one of producerPrefixes. With no
// prefixes, DefaultProducerPrefix is used.
//
// "int x = __VERIFIER_nondet_int();" yields "x"; "x=__VERIFIER_nondet_int();"
// yields nothing because "=" is not a separate token.
func ExtractVariable(line string, producerPrefixes ...string) (string, bool) {
	if len(producerPrefixes) == 0 {
		producerPrefixes = []string{DefaultProducerPrefix}
	}
	tokens := strings.Fields(line)
	for i, tok := range tokens {
		if tok != "=" {
			continue
		}
		if i == 0 || i+1 == len(tokens) {
			return "", false
		}
		for _, prefix := range producerPrefixes {
			if strings.HasPrefix(tokens[i+1], prefix) {
				return tokens[i-1], true
			}
		}
		return "", false
	}
	return "", false
}
