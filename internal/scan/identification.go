package scan

import "strings"

var vendorModels = []struct {
	needle string
	model  string
}{
	{"mikrotik", "RouterBOARD"},
	{"intelbras", "Roteador"},
	{"ubiquiti", "Access Point"},
	{"tp-link", "Roteador"},
	{"apple", "iPhone/iPad"},
	{"samsung", "Galaxy"},
	{"xiaomi", "Redmi"},
}

var portModels = []struct {
	port  int
	model string
}{
	{22, "Linux/SSH device"},
	{80, "Web server"},
	{8080, "IP camera/Web server"},
	{554, "RTSP camera"},
	{3389, "Windows computer"},
}

// Classify derives a model label. Vendor names win over port hints, and
// within each group the first rule that matches decides.
func Classify(vendor string, openPorts PortSet) string {
	if model := modelFromVendor(vendor); model != "" {
		return model
	}
	if model := modelFromPorts(openPorts); model != "" {
		return model
	}
	return UnknownModel
}

func modelFromVendor(vendor string) string {
	v := strings.ToLower(vendor)
	if v == "" || v == strings.ToLower(UnknownVendor) {
		return ""
	}
	for _, rule := range vendorModels {
		if strings.Contains(v, rule.needle) {
			return rule.model
		}
	}
	return ""
}

func modelFromPorts(openPorts PortSet) string {
	for _, rule := range portModels {
		if openPorts.Contains(rule.port) {
			return rule.model
		}
	}
	return ""
}
