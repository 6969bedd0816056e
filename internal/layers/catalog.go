package layers

// Catalog dataset identifiers.
const (
	CHIRPSPentad      = "UCSB-CHG/CHIRPS/PENTAD"
	Sentinel2         = "COPERNICUS/S2"
	PopulationDensity = "CIESIN/GPWv411/GPW_Population_Density"
	WorldCover        = "ESA/WorldCover/v100"
	AdminBoundaries   = "FAO/GAUL_SIMPLIFIED_500m/2015/level2"
)

// Band names of the normalized layers.
const (
	RainfallBand   = "precipitation_sum_normalized"
	NDVIBand       = "ndvi"
	PopulationBand = "population_density_normalized"
	LandCoverBand  = "remapped"
)

// Display palettes.
var (
	RiskPalette       = []string{"blue", "cyan", "green", "yellow", "red"}
	RainfallPalette   = []string{"#ffffcc", "#a1dab4", "#41b6c4", "#2c7fb8", "#253494"}
	VegetationPalette = []string{"white", "green"}
	PopulationPalette = []string{"ffffe7", "FFc869", "ffac1d", "e17735", "f2552c", "9f0c21"}
)

// Scale in meters at which region min/max statistics are computed.
const normalizeScale = 30
