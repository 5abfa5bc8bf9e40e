package zonalib

import (
	"os"
	"strings"

	"github.com/wgdzlh/zonalib/log"
	"github.com/wgdzlh/zonalib/utils"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// shpDeclaresUtf8 reports whether the shapefile's sidecar .cpg declares a
// UTF-8 charset. Missing .cpg is taken as UTF-8.
func shpDeclaresUtf8(shp string) bool {
	buf, err := os.ReadFile(strings.TrimSuffix(shp, FILE_EXT_SHP) + FILE_EXT_CPG)
	if err != nil {
		return true
	}
	return strings.Contains(strings.ToUpper(string(buf)), "UTF")
}

// GeometryCollectionFromShapefile reads every feature of the shapefile's
// first layer. labelField optionally names the attribute attached as the
// collection's index.
func (g *ZonalToolbox) GeometryCollectionFromShapefile(shp, labelField string) (*GeometryCollection, error) {
	return g.readShapefile(shp, labelField, shpDeclaresUtf8(shp))
}

// GeometryCollectionFromZip extracts a zipped shapefile into the toolbox tmp
// dir and reads it.
func (g *ZonalToolbox) GeometryCollectionFromZip(zipFile, labelField string) (gc *GeometryCollection, err error) {
	shp, utf8Enc, err := utils.GetShpInZip(zipFile, g.tmpDir)
	if err != nil {
		log.Error(g.logTag+"unzip shp failed", zap.String("zip", zipFile), zap.Error(err))
		return
	}
	return g.readShapefile(shp, labelField, utf8Enc)
}

func (g *ZonalToolbox) readShapefile(shp, labelField string, utf8Enc bool) (gc *GeometryCollection, err error) {
	ds, err := gdal.Open(shp, gdal.VectorOnly())
	if err != nil {
		log.Error(g.logTag+"open shp failed", zap.String("shp", shp), zap.Error(err))
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Close()
	layers := ds.Layers()
	if len(layers) == 0 {
		err = ErrGdalDriverOpen
		return
	}
	layer := layers[0]
	// shapefiles without a projection yield an undefined CRS, which zonal
	// methods other than exactextract accept
	srid, e := g.getSrid(layer.SpatialRef())
	if e != nil {
		srid = 0
	}
	gc = &GeometryCollection{SRID: srid}
	if labelField != "" {
		gc.IndexName = labelField
	}
	var (
		feature *gdal.Feature
		wkb     GdalGeo
		label   string
	)
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		wkb, e = feature.Geometry().WKB()
		if e != nil {
			log.Error(g.logTag+"err in wkb convert", zap.Error(e))
			feature.Close()
			continue
		}
		gc.Geoms = append(gc.Geoms, wkb)
		if labelField != "" {
			label = feature.Fields()[labelField].String()
			if !utf8Enc {
				if d, ce := utils.GbkStrToUtf8(label); ce == nil {
					label = d
				}
			}
			gc.Index = append(gc.Index, utils.PurifyForUtf8(label))
		}
		feature.Close()
	}
	if len(gc.Geoms) == 0 {
		gc = nil
		err = ErrEmptyCollection
		return
	}
	log.Info(g.logTag+"read shp done", zap.String("shp", shp), zap.Int("srid", srid),
		zap.Int("geoms", len(gc.Geoms)), zap.String("labelField", labelField))
	return
}
