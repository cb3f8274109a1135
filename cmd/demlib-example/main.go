package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/wgdzlh/demlib"
)

func run() error {
	var (
		indexShp = flag.String("index", "", "tile index shapefile")
		idField  = flag.String("id-field", "tile_id", "tile id field in the index")
		urlField = flag.String("url-field", "url", "archive locator field in the index")
		coastShp = flag.String("coast", "", "sea polygon shapefile (optional)")
		geoidTif = flag.String("geoid", "", "reference geoid raster (optional)")
		staging  = flag.String("staging", "staging", "staging directory")
		output   = flag.String("output", "output", "output directory")
		srid     = flag.Int("srid", 3035, "target projected EPSG")
		res      = flag.Float64("res", 25, "target resolution")
		xmin     = flag.Float64("xmin", 0, "output extent xmin")
		ymin     = flag.Float64("ymin", 0, "output extent ymin")
		xmax     = flag.Float64("xmax", 0, "output extent xmax")
		ymax     = flag.Float64("ymax", 0, "output extent ymax")
	)
	flag.Parse()

	g, err := demlib.NewDemToolbox(demlib.RunConfig{
		TargetSrid:   *srid,
		Resolution:   *res,
		Extent:       [4]float64{*xmin, *ymin, *xmax, *ymax},
		ScaleFactors: []float64{0.5, 0.25},
		StagingDir:   *staging,
		OutputDir:    *output,
	})
	if err != nil {
		return err
	}
	sum, err := g.Run(context.Background(), demlib.PipelineInput{
		IndexShp: *indexShp,
		IdField:  *idField,
		UrlField: *urlField,
		CoastShp: *coastShp,
		GeoidTif: *geoidTif,
	})
	if err != nil {
		return err
	}
	fmt.Printf("mosaic: %s\n", sum.Mosaic)
	for _, ov := range sum.Overviews {
		fmt.Printf("overview: %s\n", ov)
	}
	for _, te := range sum.Failed {
		fmt.Printf("failed tile: %v\n", te)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
