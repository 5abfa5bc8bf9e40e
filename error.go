package zonalib

import "errors"

var (
	ErrUnsupportedMethod  = errors.New("unsupported zonal method")
	ErrUnknownStrategy    = errors.New("unknown exactextract strategy")
	ErrInvalidAggregation = errors.New("invalid aggregation")
	ErrBadStatParam       = errors.New("bad aggregation parameter")
	ErrMissingCRS         = errors.New("geometry input does not have a coordinate reference system")
	ErrDimNotFound        = errors.New("dimension not found in grid")
	ErrAxisMismatch       = errors.New("axis length does not match grid values")
	ErrEmptyCollection    = errors.New("geometry collection is empty")
	ErrBadSpatialAxis     = errors.New("spatial axis is not monotonic evenly spaced")
	ErrVoidSrid           = errors.New("shp with void srid")
	ErrGdalDriverOpen     = errors.New("gdal driver open err")
	ErrInvalidWKT         = errors.New("invalid WKT")
)
