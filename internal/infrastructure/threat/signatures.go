package threat

import (
	"bytes"
	"regexp"
)

const (
	CategoryDangerousExtension = "dangerous_extension"
	CategoryScriptInjection    = "script_injection"
	CategorySQLInjection       = "sql_injection"
	CategoryXSS                = "xss"
	CategoryFileInclusion      = "file_inclusion"
	CategoryEmbeddedBinary     = "embedded_binary"
	CategoryHeaderMismatch     = "header_mismatch"
)

var dangerousExtensions = map[string]bool{
	"exe": true, "dll": true, "bat": true, "cmd": true, "com": true, "scr": true,
	"pif": true, "msi": true, "vbs": true, "vbe": true, "js": true, "jse": true,
	"wsf": true, "wsh": true, "ps1": true, "psm1": true, "sh": true, "jar": true,
	"hta": true, "cpl": true, "lnk": true, "reg": true, "app": true, "apk": true,
}

var suspiciousNameKeywords = []string{
	"virus", "malware", "trojan", "exploit", "payload", "backdoor",
	"keygen", "crack", "ransom", "rootkit", "hack",
}

var (
	doubleExtensionPattern = regexp.MustCompile(`\.([A-Za-z0-9]{2,5})\.([A-Za-z0-9]{2,5})$`)
	unsafeNamePattern      = regexp.MustCompile(`[^A-Za-z0-9 _.\-]`)
	suspiciousURLPattern   = regexp.MustCompile(`(?i)https?://(?:\d{1,3}\.){3}\d{1,3}|\b(?:\d{1,3}\.){3}\d{1,3}:\d{2,5}\b|\.onion\b|\b(?:bit\.ly|tinyurl\.com|pastebin\.com|ngrok\.io)\b`)
)

// compoundExtensions are inner extensions that legitimately precede another.
var compoundExtensions = map[string]bool{"tar": true}

type signature struct {
	name  string
	match func([]byte) bool
}

func pattern(name, expr string) signature {
	re := regexp.MustCompile(expr)
	return signature{name: name, match: re.Match}
}

func prefix(name string, magic []byte) signature {
	return signature{name: name, match: func(b []byte) bool { return bytes.HasPrefix(b, magic) }}
}

func contains(name string, marker []byte) signature {
	return signature{name: name, match: func(b []byte) bool { return bytes.Contains(b, marker) }}
}

type signatureCategory struct {
	name       string
	label      string
	signatures []signature
}

// signatureCategories is evaluated in order; the first matching signature
// of a category is the only one reported for it.
var signatureCategories = []signatureCategory{
	{
		name:  CategoryScriptInjection,
		label: "code execution",
		signatures: []signature{
			pattern("php open tag", `(?i)<\?php`),
			pattern("eval call", `(?i)\beval\s*\(`),
			pattern("exec call", `(?i)\b(?:exec|system|passthru|shell_exec|popen|proc_open)\s*\(\s*["'$\x60]`),
			pattern("base64 decode call", `(?i)\bbase64_decode\s*\(`),
			pattern("powershell invocation", `(?i)\bpowershell(?:\.exe)?\s+-`),
			pattern("cmd.exe invocation", `(?i)\bcmd\.exe\b`),
			pattern("wscript shell", `(?i)wscript\.shell`),
			pattern("shell interpreter", `(?m)^#!\s*/(?:usr/)?bin/(?:env\s+)?(?:ba|z|k)?sh\b`),
		},
	},
	{
		name:  CategorySQLInjection,
		label: "SQL injection",
		signatures: []signature{
			pattern("union select", `(?i)\bunion\s+(?:all\s+)?select\b`),
			pattern("drop table", `(?i);\s*drop\s+(?:table|database)\b`),
			pattern("tautology", `(?i)'\s*or\s+'?1'?\s*=\s*'?1`),
			pattern("stacked delete", `(?i);\s*delete\s+from\b`),
			pattern("xp_cmdshell", `(?i)\bxp_cmdshell\b`),
			// Only in SQL context: after a keyword, quote or statement break, with a
			// numeric first argument closed by "," or ")".
			pattern("time-based injection", `(?i)(?:\b(?:select|and|or|where|waitfor)\s+|['";(]\s*)(?:sleep|pg_sleep|benchmark)\s*\(\s*\d+\s*[,)]`),
		},
	},
	{
		name:  CategoryXSS,
		label: "cross-site scripting",
		signatures: []signature{
			pattern("script tag", `(?i)<script[\s>/]`),
			pattern("javascript url", `(?i)javascript\s*:`),
			pattern("inline event handler", `(?i)<[^>]+\son(?:error|load|click|mouseover|focus)\s*=`),
			pattern("iframe tag", `(?i)<iframe[\s>/]`),
			pattern("cookie access", `(?i)document\.cookie`),
		},
	},
	{
		name:  CategoryFileInclusion,
		label: "path traversal or file inclusion",
		signatures: []signature{
			pattern("dot-dot traversal", `(?:\.\./){2,}|(?:\.\.\\){2,}`),
			pattern("passwd access", `/etc/(?:passwd|shadow)\b`),
			pattern("stream wrapper", `(?i)\b(?:php|expect|phar|zip|data)://`),
			pattern("windows system path", `(?i)c:\\windows\\system32`),
		},
	},
	{
		name:  CategoryEmbeddedBinary,
		label: "embedded executable",
		signatures: []signature{
			contains("PE stub", []byte("This program cannot be run in DOS mode")),
			prefix("PE header", []byte("MZ")),
			prefix("ELF header", []byte{0x7F, 'E', 'L', 'F'}),
			prefix("Mach-O header", []byte{0xCF, 0xFA, 0xED, 0xFE}),
			prefix("Mach-O universal header", []byte{0xCA, 0xFE, 0xBA, 0xBE}),
		},
	},
}

type magic struct {
	prefixes [][]byte
}

func (m magic) matches(b []byte) bool {
	for _, p := range m.prefixes {
		if bytes.HasPrefix(b, p) {
			return true
		}
	}
	return false
}

var (
	zipMagic = [][]byte{[]byte("PK\x03\x04"), []byte("PK\x05\x06")}

	// headerTable lists extensions with a known leading signature. Extensions
	// missing here (csv, txt, json, ...) are not header-validated.
	headerTable = map[string]magic{
		"pdf":  {prefixes: [][]byte{[]byte("%PDF-")}},
		"jpg":  {prefixes: [][]byte{{0xFF, 0xD8, 0xFF}}},
		"jpeg": {prefixes: [][]byte{{0xFF, 0xD8, 0xFF}}},
		"png":  {prefixes: [][]byte{{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}}},
		"gif":  {prefixes: [][]byte{[]byte("GIF87a"), []byte("GIF89a")}},
		"zip":  {prefixes: zipMagic},
		"docx": {prefixes: zipMagic},
		"xlsx": {prefixes: zipMagic},
		"xml":  {prefixes: [][]byte{[]byte("<")}},
	}
)

var compressionMagic = []struct {
	name  string
	magic []byte
}{
	{"zip", []byte("PK\x03\x04")},
	{"rar", []byte("Rar!\x1A\x07")},
	{"7z", []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
}

var gzipMagic = []byte{0x1F, 0x8B, 0x08}

var archiveExtensions = map[string]bool{
	"zip": true, "docx": true, "xlsx": true, "pptx": true, "jar": true, "apk": true,
	"gz": true, "tgz": true, "rar": true, "7z": true, "odt": true, "ods": true,
}

var textExtensions = map[string]bool{
	"txt": true, "csv": true, "tsv": true, "json": true, "xml": true, "html": true,
	"htm": true, "md": true, "log": true,
}
