package domain

// Lookup tables for the packed enumerations of the broadcast format.
// Indices outside a table resolve to "unknown" (or "reserved" where the format says so).

var idTypes = []string{
	"none",
	"serial",
	"caa_registration",
	"utm_assigned",
	"session",
}

var uaTypes = []string{
	"none",
	"aeroplane",
	"helicopter_multirotor",
	"gyroplane",
	"hybrid_lift",
	"ornithopter",
	"glider",
	"kite",
	"free_balloon",
	"captive_balloon",
	"airship",
	"free_fall_parachute",
	"rocket",
	"tethered_powered_aircraft",
	"ground_obstacle",
	"other",
}

var operationalStatuses = []string{
	"undeclared",
	"ground",
	"airborne",
	"emergency",
	"system_failure",
}

var heightTypes = []string{
	"above_takeoff",
	"above_ground",
}

var horizontalAccuracies = []string{
	"unknown",
	"<30000 m",
	"<10000 m",
	"<3000 m",
	"<1000 m",
	"<300 m",
	"<100 m",
	"<30 m",
	"<10 m",
}

var verticalAccuracies = []string{
	"unknown",
	"<3000 m",
	"<1000 m",
	"<300 m",
	"<100 m",
	"<30 m",
	"<10 m",
	"<3 m",
	"<1 m",
}

var speedAccuracies = []string{
	"unknown",
	"<10 m/s",
	"<3 m/s",
	"<1 m/s",
	"<0.3 m/s",
}

var descriptionTypes = []string{
	"text",
	"emergency",
	"extended_status",
}

var operatorLocationTypes = []string{
	"takeoff",
	"live_gnss",
	"fixed",
}

var classificationTypes = []string{
	"undeclared",
	"eu",
}

var operatorIDTypes = []string{
	"caa",
}

var authTypes = []string{
	"none",
	"uas_id_signature",
	"operator_id_signature",
	"message_set_signature",
	"network_remote_id",
	"specific_method",
}

var uaCategories = []string{
	"undeclared",
	"open",
	"specific",
	"certified",
}

func lookup(table []string, idx int, fallback string) string {
	if idx >= 0 && idx < len(table) {
		return table[idx]
	}
	return fallback
}

func IDType(v uint8) string               { return lookup(idTypes, int(v), "unknown") }
func UAType(v uint8) string               { return lookup(uaTypes, int(v), "unknown") }
func OperationalStatus(v uint8) string    { return lookup(operationalStatuses, int(v), "reserved") }
func HeightType(v uint8) string           { return lookup(heightTypes, int(v), "unknown") }
func HorizontalAccuracy(v uint8) string   { return lookup(horizontalAccuracies, int(v), "unknown") }
func VerticalAccuracy(v uint8) string     { return lookup(verticalAccuracies, int(v), "unknown") }
func SpeedAccuracy(v uint8) string        { return lookup(speedAccuracies, int(v), "unknown") }
func DescriptionType(v uint8) string      { return lookup(descriptionTypes, int(v), "reserved") }
func OperatorLocationType(v uint8) string { return lookup(operatorLocationTypes, int(v), "reserved") }
func ClassificationType(v uint8) string   { return lookup(classificationTypes, int(v), "reserved") }
func OperatorIDType(v uint8) string       { return lookup(operatorIDTypes, int(v), "reserved") }
func AuthType(v uint8) string             { return lookup(authTypes, int(v), "reserved") }
func UACategory(v uint8) string           { return lookup(uaCategories, int(v), "reserved") }

// UAClass maps the EU class nibble; 0 is undeclared, 1..7 are classes C0..C6.
func UAClass(v uint8) string {
	switch {
	case v == 0:
		return "undeclared"
	case v <= 7:
		return "C" + string(rune('0'+v-1))
	default:
		return "reserved"
	}
}
