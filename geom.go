package zonalib

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/wgdzlh/zonalib/log"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

type Geometry = gdal.Geometry
type SpatialRef = gdal.SpatialRef

type ZonalToolbox struct {
	refMap map[int]*SpatialRef
	rLock  sync.Mutex
	tmpDir string
	logTag string
}

// NewZonalToolbox sets up the toolbox; tmpDir is an optional scratch
// directory (defaults to the working directory). GDAL drivers are registered
// on first use.
func NewZonalToolbox(tmpDir ...string) *ZonalToolbox {
	gdal.RegisterAll()
	g := &ZonalToolbox{
		refMap: map[int]*SpatialRef{},
		logTag: "ZonalToolbox:",
	}
	if len(tmpDir) > 0 && tmpDir[0] != "" {
		g.tmpDir = tmpDir[0]
	}
	return g
}

// getSridRef returns the cached spatial ref of srid (shared, never closed)
func (g *ZonalToolbox) getSridRef(srid int) (ref *SpatialRef, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	if ref, err = gdal.NewSpatialRefFromEPSG(srid); err != nil {
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		return
	}
	g.refMap[srid] = ref
	return
}

func (g *ZonalToolbox) getSrid(sp *SpatialRef) (srid int, err error) {
	if sp == nil {
		err = ErrVoidSrid
		return
	}
	sp.AutoIdentifyEPSG()
	rawId := sp.AuthorityCode("")
	if rawId == "" {
		err = ErrVoidSrid
		return
	}
	srid, err = strconv.Atoi(rawId)
	log.Info(g.logTag+"got srid from sp", zap.String("id", rawId))
	return
}

func (g *ZonalToolbox) parseWKB(wkb GdalGeo, ref *SpatialRef) (ret *Geometry, err error) {
	ret, err = gdal.NewGeometryFromWKB(wkb, ref)
	if err != nil {
		log.Error(g.logTag+"parse wkb failed", zap.Error(err))
	}
	return
}

func (g *ZonalToolbox) parseWKT(wkt string, ref *SpatialRef) (ret *Geometry, err error) {
	ret, err = gdal.NewGeometryFromWKT(wkt, ref)
	if err != nil {
		log.Error(g.logTag+"parse wkt failed", zap.Error(err))
		err = ErrInvalidWKT
	}
	return
}

// TransformWkb reprojects a WKB geometry between two EPSG codes.
func (g *ZonalToolbox) TransformWkb(wkb GdalGeo, srid, tSrid int) (ret GdalGeo, err error) {
	if tSrid == srid {
		ret = wkb
		return
	}
	ref, err := g.getSridRef(srid)
	if err != nil {
		return
	}
	tRef, err := g.getSridRef(tSrid)
	if err != nil {
		return
	}
	geo, err := g.parseWKB(wkb, ref)
	if err != nil {
		return
	}
	defer geo.Close()
	if err = geo.Reproject(tRef); err != nil {
		log.Error(g.logTag+"geo transform failed", zap.Error(err))
		return
	}
	ret, err = geo.WKB()
	return
}

func (g *ZonalToolbox) WktToWkb(wkt string, srid int) (wkb GdalGeo, err error) {
	var ref *SpatialRef
	if srid != 0 {
		if ref, err = g.getSridRef(srid); err != nil {
			return
		}
	}
	geo, err := g.parseWKT(wkt, ref)
	if err != nil {
		return
	}
	wkb, err = geo.WKB()
	geo.Close()
	return
}

func (g *ZonalToolbox) WkbToWkt(wkb GdalGeo, srid int) (wkt string, err error) {
	var ref *SpatialRef
	if srid != 0 {
		if ref, err = g.getSridRef(srid); err != nil {
			return
		}
	}
	geo, err := g.parseWKB(wkb, ref)
	if err != nil {
		return
	}
	wkt, err = geo.WKT()
	geo.Close()
	return
}

// CollectionFromWKT builds a geometry collection from WKT strings.
func (g *ZonalToolbox) CollectionFromWKT(wkts []string, srid int) (gc *GeometryCollection, err error) {
	var ref *SpatialRef
	if srid != 0 {
		if ref, err = g.getSridRef(srid); err != nil {
			return
		}
	}
	gc = &GeometryCollection{SRID: srid}
	var geo *Geometry
	for _, wkt := range wkts {
		if geo, err = g.parseWKT(wkt, ref); err != nil {
			return
		}
		var wkb GdalGeo
		wkb, err = geo.WKB()
		geo.Close()
		if err != nil {
			return
		}
		gc.Geoms = append(gc.Geoms, wkb)
	}
	return
}

// openGeometries parses every WKB of the collection, reprojecting onto the
// grid's CRS when both sides declare one and they differ. Callers own the
// returned geometries.
func (g *ZonalToolbox) openGeometries(gc *GeometryCollection, gridSrid int) (geos []*Geometry, err error) {
	if len(gc.Geoms) == 0 {
		err = ErrEmptyCollection
		return
	}
	var ref, tRef *SpatialRef
	if gc.SRID != 0 {
		if ref, err = g.getSridRef(gc.SRID); err != nil {
			return
		}
	}
	reproject := gc.SRID != 0 && gridSrid != 0 && gridSrid != gc.SRID
	if reproject {
		if tRef, err = g.getSridRef(gridSrid); err != nil {
			return
		}
		reproject = !ref.IsSame(tRef)
	}
	geos = make([]*Geometry, len(gc.Geoms))
	defer func() {
		if err != nil {
			closeGeometries(geos)
			geos = nil
		}
	}()
	var geo *Geometry
	for i, wkb := range gc.Geoms {
		if geo, err = g.parseWKB(wkb, ref); err != nil {
			err = fmt.Errorf("geometry %d: %w", i, err)
			return
		}
		geos[i] = geo
		if reproject {
			if err = geo.Reproject(tRef); err != nil {
				log.Error(g.logTag+"geo transform failed", zap.Int("idx", i), zap.Error(err))
				err = fmt.Errorf("geometry %d: %w", i, err)
				return
			}
		}
	}
	return
}

func closeGeometries(geos []*Geometry) {
	for _, geo := range geos {
		if geo != nil {
			geo.Close()
		}
	}
}

func PointsToWkt(lon1, lon2, lat1, lat2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", lon1, lon2, lat1, lat2)
}

func SpanToWkt(span [4]float64) string {
	return PointsToWkt(span[0], span[1], span[2], span[3])
}
