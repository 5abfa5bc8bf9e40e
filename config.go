package zonalib

const (
	MethodRasterize    = "rasterize"
	MethodIterate      = "iterate"
	MethodExactExtract = "exactextract"

	StrategyFeatureSequential = "feature-sequential"
	StrategyRasterSequential  = "raster-sequential"

	StatMean        = "mean"
	StatSum         = "sum"
	StatMedian      = "median"
	StatStd         = "std"
	StatVariance    = "var"
	StatMin         = "min"
	StatMax         = "max"
	StatCount       = "count"
	StatNodataCount = "nodata_count"
	StatCoverage    = "coverage"
	StatQuantile    = "quantile"
	StatMajority    = "majority"
	StatMinority    = "minority"
	StatUnique      = "unique"

	// accepted aliases of the canonical names above
	StatStddev       = "stddev"
	StatVarianceFull = "variance"
	StatMode         = "mode"
	StatFraction     = "fraction"

	StatsAxisName    = "zonal_statistics"
	GeometryAxisName = "geometry"

	DefaultStatLabel = "stat"

	FILE_EXT_SHP = ".shp"
	FILE_EXT_CPG = ".cpg"

	// relative tolerance for spatial coordinate spacing checks
	SpacingTolerance = 0.01

	// raster-sequential traversal handles this many rows per block
	RasterBlockRows = 256
)
