package formula

import "strings"

// Interpolate substitutes [field] references inside free text with their
// payload values. Used for config strings that mix prose with references;
// unknown fields become empty text.
func Interpolate(s string, fctx *Context) string {
	var sb strings.Builder
	for {
		start := strings.IndexByte(s, '[')
		if start < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:start])
		name := strings.TrimSpace(s[start+1 : start+end])
		if fctx.Payload != nil {
			sb.WriteString(toString(fctx.Payload[name]))
		}
		s = s[start+end+1:]
	}
}
