package lst

import (
	"fmt"
	"strings"
)

// Sensor is a Landsat generation supported by the SMW algorithm.
type Sensor int

const (
	L4 Sensor = iota
	L5
	L7
	L8
)

// Coefficients are the SMW inversion terms for one water-vapour bin.
type Coefficients struct {
	A, B, C float64
}

// EmissivityWeights convolve ASTER bands 13 and 14 to the sensor's TIR band.
type EmissivityWeights struct {
	C13, C14, C float64
}

// Record is the static description of a sensor generation.
type Record struct {
	TOA         string   // top-of-atmosphere collection
	SR          string   // surface-reflectance collection
	TIR         []string // thermal bands taken from TOA
	ThermalBand string   // TIR band used for the inversion
	VISW        []string // visible, NIR, SWIR and QA bands taken from SR
	NIR, Red    string
	Emissivity  EmissivityWeights
	SMW         [10]Coefficients // indexed by water-vapour bin
}

var visw = []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7", "QA_PIXEL"}

var records = [...]Record{
	L4: {
		TOA:         "LANDSAT/LT04/C02/T1_TOA",
		SR:          "LANDSAT/LT04/C02/T1_L2",
		TIR:         []string{"B6"},
		ThermalBand: "B6",
		VISW:        visw,
		NIR:         "SR_B4",
		Red:         "SR_B3",
		Emissivity:  EmissivityWeights{C13: 0.3222, C14: 0.6498, C: 0.0272},
		SMW: [10]Coefficients{
			{0.9755, -205.2767, 212.0051},
			{1.0155, -233.8902, 230.4049},
			{1.0672, -257.1884, 239.3072},
			{1.1499, -286.2166, 244.8497},
			{1.2277, -316.7643, 253.0033},
			{1.3649, -361.8276, 258.5471},
			{1.5085, -410.1157, 265.1131},
			{1.7045, -472.4909, 270.7},
			{1.5886, -442.9489, 277.1511},
			{2.0215, -571.8563, 279.9854},
		},
	},
	L5: {
		TOA:         "LANDSAT/LT05/C02/T1_TOA",
		SR:          "LANDSAT/LT05/C02/T1_L2",
		TIR:         []string{"B6"},
		ThermalBand: "B6",
		VISW:        visw,
		NIR:         "SR_B4",
		Red:         "SR_B3",
		Emissivity:  EmissivityWeights{C13: -0.0723, C14: 1.0521, C: 0.0195},
		SMW: [10]Coefficients{
			{0.9765, -204.6584, 211.1321},
			{1.0229, -235.5384, 230.0619},
			{1.0817, -261.3886, 239.5256},
			{1.1738, -293.6128, 245.6042},
			{1.2605, -327.1417, 254.2301},
			{1.4166, -377.7741, 259.9711},
			{1.5727, -430.0388, 266.952},
			{1.7879, -498.1947, 272.8413},
			{1.6347, -457.8183, 279.616},
			{2.1168, -600.7079, 282.4583},
		},
	},
	L7: {
		TOA:         "LANDSAT/LE07/C02/T1_TOA",
		SR:          "LANDSAT/LE07/C02/T1_L2",
		TIR:         []string{"B6_VCID_1", "B6_VCID_2"},
		ThermalBand: "B6_VCID_1",
		VISW:        visw,
		NIR:         "SR_B4",
		Red:         "SR_B3",
		Emissivity:  EmissivityWeights{C13: 0.2147, C14: 0.7789, C: 0.0059},
		SMW: [10]Coefficients{
			{0.9764, -205.3511, 211.8507},
			{1.0201, -235.2416, 230.5468},
			{1.075, -259.656, 239.6619},
			{1.1612, -289.819, 245.3286},
			{1.2425, -321.4658, 253.6144},
			{1.3864, -368.4078, 259.139},
			{1.5336, -417.7796, 265.7486},
			{1.7345, -481.5714, 271.3659},
			{1.6066, -448.5071, 277.9058},
			{2.0533, -581.2619, 280.68},
		},
	},
	L8: {
		TOA:         "LANDSAT/LC08/C02/T1_TOA",
		SR:          "LANDSAT/LC08/C02/T1_L2",
		TIR:         []string{"B10", "B11"},
		ThermalBand: "B10",
		VISW:        []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7", "QA_PIXEL"},
		NIR:         "SR_B5",
		Red:         "SR_B4",
		Emissivity:  EmissivityWeights{C13: 0.682, C14: 0.2578, C: 0.0584},
		SMW: [10]Coefficients{
			{0.9751, -205.8929, 212.7173},
			{1.009, -232.275, 230.5698},
			{1.0541, -253.1943, 238.9548},
			{1.1282, -279.4212, 244.0772},
			{1.1987, -307.4497, 251.8341},
			{1.3205, -348.0228, 257.274},
			{1.454, -393.1718, 263.5599},
			{1.635, -451.079, 268.9405},
			{1.5468, -429.5095, 275.0895},
			{1.9403, -547.2681, 277.9953},
		},
	},
}

// Record returns the static description of s.
func (s Sensor) Record() Record {
	return records[s]
}

func (s Sensor) String() string {
	switch s {
	case L4:
		return "L4"
	case L5:
		return "L5"
	case L7:
		return "L7"
	case L8:
		return "L8"
	}
	return fmt.Sprintf("Sensor(%d)", int(s))
}

// ParseSensor accepts "L4", "L5", "L7" or "L8" (case-insensitive).
func ParseSensor(s string) (Sensor, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L4":
		return L4, nil
	case "L5":
		return L5, nil
	case "L7":
		return L7, nil
	case "L8":
		return L8, nil
	}
	return 0, fmt.Errorf("unknown landsat sensor %q", s)
}
