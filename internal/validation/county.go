package validation

import "strings"

// KenyaCounties lists the 47 counties in their canonical spelling
var KenyaCounties = []string{
	"Baringo", "Bomet", "Bungoma", "Busia", "Elgeyo-Marakwet",
	"Embu", "Garissa", "Homa Bay", "Isiolo", "Kajiado",
	"Kakamega", "Kericho", "Kiambu", "Kilifi", "Kirinyaga",
	"Kisii", "Kisumu", "Kitui", "Kwale", "Laikipia",
	"Lamu", "Machakos", "Makueni", "Mandera", "Marsabit",
	"Meru", "Migori", "Mombasa", "Muranga", "Nairobi",
	"Nakuru", "Nandi", "Narok", "Nyamira", "Nyandarua",
	"Nyeri", "Samburu", "Siaya", "Taita-Taveta", "Tana River",
	"Tharaka-Nithi", "Trans-Nzoia", "Turkana", "Uasin Gishu", "Vihiga",
	"Wajir", "West Pokot",
}

var countyIndex = func() map[string]string {
	idx := make(map[string]string, len(KenyaCounties))
	for _, c := range KenyaCounties {
		idx[strings.ToLower(c)] = c
	}
	return idx
}()

// IsKenyanCounty reports whether county names one of the 47 counties, ignoring case
func IsKenyanCounty(county string) bool {
	_, ok := countyIndex[strings.ToLower(strings.TrimSpace(county))]
	return ok
}

// CanonicalCounty returns the canonical spelling of a known county and the
// trimmed input otherwise
func CanonicalCounty(county string) string {
	trimmed := strings.TrimSpace(county)
	if c, ok := countyIndex[strings.ToLower(trimmed)]; ok {
		return c
	}
	return trimmed
}
