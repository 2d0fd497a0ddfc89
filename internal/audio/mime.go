package audio

import "strings"

// MIMETypeWAV is the MIME type of every blob produced by Trim.
const MIMETypeWAV = "audio/wav"

// ExtensionForMIME maps a capture MIME type (parameters such as
// ";codecs=opus" are ignored) to the extension used in upload filenames.
func ExtensionForMIME(mime string) string {
	base := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch base {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "wav"
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return "m4a"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	default:
		return "bin"
	}
}

// MIMEForExtension is the inverse of ExtensionForMIME for files loaded from
// disk. Unknown extensions map to application/octet-stream.
func MIMEForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return MIMETypeWAV
	case "webm":
		return "audio/webm"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	case "m4a", "mp4", "aac":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
