package gemini

import "strings"

// ParseImagePayload splits a client-supplied image into base64 data and mime
// type, stripping the data-URI envelope when present. Bare base64 passes
// through with an empty mime.
func ParseImagePayload(raw string) (data, mime string) {
	if !strings.HasPrefix(raw, "data:") {
		return raw, ""
	}
	rest := strings.TrimPrefix(raw, "data:")
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return raw, ""
	}
	meta := rest[:sep]
	data = rest[sep+1:]
	mime = strings.TrimSuffix(meta, ";base64")
	return data, mime
}
