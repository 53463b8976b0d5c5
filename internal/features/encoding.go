package features

import "strings"

// Browser is the categorical code of a user agent family. Unrecognized
// browsers encode to BrowserUnknown.
type Browser int

const (
	BrowserUnknown Browser = iota
	BrowserChrome
	BrowserFirefox
	BrowserSafari
	BrowserEdge
	BrowserTor
)

var browserCodes = map[string]Browser{
	"Chrome":      BrowserChrome,
	"Firefox":     BrowserFirefox,
	"Safari":      BrowserSafari,
	"Edge":        BrowserEdge,
	"TOR Browser": BrowserTor,
}

func ParseBrowser(name string) Browser {
	if b, ok := browserCodes[strings.TrimSpace(name)]; ok {
		return b
	}
	return BrowserUnknown
}

func (b Browser) String() string {
	switch b {
	case BrowserChrome:
		return "Chrome"
	case BrowserFirefox:
		return "Firefox"
	case BrowserSafari:
		return "Safari"
	case BrowserEdge:
		return "Edge"
	case BrowserTor:
		return "TOR Browser"
	default:
		return "unknown"
	}
}

// OS is the categorical code of an operating system. iPhone shares the iOS code.
type OS int

const (
	OSUnknown OS = iota
	OSWindows
	OSMacOS
	OSLinux
	OSIOS
	OSAndroid
)

var osCodes = map[string]OS{
	"Windows": OSWindows,
	"macOS":   OSMacOS,
	"Linux":   OSLinux,
	"iOS":     OSIOS,
	"iPhone":  OSIOS,
	"Android": OSAndroid,
}

func ParseOS(name string) OS {
	if o, ok := osCodes[strings.TrimSpace(name)]; ok {
		return o
	}
	return OSUnknown
}

func (o OS) String() string {
	switch o {
	case OSWindows:
		return "Windows"
	case OSMacOS:
		return "macOS"
	case OSLinux:
		return "Linux"
	case OSIOS:
		return "iOS"
	case OSAndroid:
		return "Android"
	default:
		return "unknown"
	}
}
