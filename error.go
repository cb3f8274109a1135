package demlib

import "errors"

var (
	ErrBadConfig          = errors.New("invalid run config")
	ErrTransfer           = errors.New("tile transfer failed")
	ErrArchiveMember      = errors.New("expected member missing from tile archive")
	ErrGridAlignment      = errors.New("raster grids not aligned")
	ErrCrsMismatch        = errors.New("rasters not in a common crs")
	ErrResourceExhausted  = errors.New("window buffer too large, reduce WindowHeight")
	ErrEmptyMosaic        = errors.New("mosaic has no valid cell")
	ErrEmptyCoastline     = errors.New("coastline has no sea polygon")
	ErrGdalDriverOpen     = errors.New("gdal driver open err")
	ErrVoidSrid           = errors.New("shp with void srid")
	ErrInvalidWKT         = errors.New("invalid WKT")
	ErrInvalidTif         = errors.New("invalid tif")
	ErrTifReadFailed      = errors.New("tif band read failed")
	ErrTifWriteFailed     = errors.New("tif band write failed")
	ErrColumnMissing      = errors.New("field missing in tile index")
	ErrNoTiles            = errors.New("no tile to merge")
	ErrDerivedFromDerived = errors.New("overview must derive from the full resolution mosaic")
)
