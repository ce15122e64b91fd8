package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"demgmrf/pkg/config"
	"demgmrf/pkg/dataset"
	"demgmrf/pkg/gmrf"
	"demgmrf/pkg/grid"
	"demgmrf/pkg/stl"
	"demgmrf/pkg/validation"
	"demgmrf/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "Input dataset file: x y z [stddev] points in plain text format")
	configFile := flag.String("config", "", "Optional YAML configuration file")
	resolution := flag.Float64("resolution", 1.0, "Resolution (side length) of each DEM cell in map units")
	outPrefix := flag.String("output-prefix", "demgmrf_out", "Prefix for all output filenames")
	chkRatio := flag.Float64("checkpoint-ratio", 0.01, "Ratio (0.0=none, 1.0=all) of points withheld as checkpoints")
	stdPrior := flag.Float64("std-prior", 1.0, "Standard deviation of the smoothness prior between adjacent cells")
	stdObs := flag.Float64("std-obs", 0.20, "Default standard deviation of each point observation")
	skipVariance := flag.Bool("skip-variance", false, "Skip posterior variance estimation")
	seed := flag.Int64("seed", 0, "Seed for the checkpoint shuffle (0 = seed from wall clock)")
	saveMesh := flag.Bool("save-mesh", false, "Also export the fitted surface as a binary STL mesh")
	flag.Parse()

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		log.Fatal("missing required -input flag")
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicit flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "resolution":
			cfg.Estimation.Resolution = *resolution
		case "std-prior":
			cfg.Estimation.PriorStdDev = *stdPrior
		case "std-obs":
			cfg.Estimation.ObsStdDev = *stdObs
		case "skip-variance":
			cfg.Estimation.SkipVariance = *skipVariance
		case "checkpoint-ratio":
			cfg.Validation.CheckpointRatio = *chkRatio
		case "seed":
			cfg.Validation.Seed = *seed
		case "output-prefix":
			cfg.Output.Prefix = *outPrefix
		case "save-mesh":
			cfg.Output.SaveMesh = *saveMesh
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	prefix := cfg.Output.Prefix

	fmt.Println("================================")
	fmt.Println("DEM RECONSTRUCTION BY GAUSSIAN MARKOV RANDOM FIELD ESTIMATION")
	fmt.Println("================================")

	// Stage 1: Load the dataset
	fmt.Printf("\n[1] Loading `%s`...\n", *inputFile)
	start := time.Now()
	data, err := dataset.Load(*inputFile, cfg.Estimation.ObsStdDev)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	fmt.Printf("[1] Done in %.3fs. Points: %d  Per-point stddev: %v\n",
		time.Since(start).Seconds(), len(data.Points), data.PerPointStdDev)

	// Stage 2: Determine the bounding box
	fmt.Println("\n[2] Determining bounding box...")
	bbox := data.Bounds(cfg.Output.Border)
	fmt.Printf("[2] Bbox: x=%11.2f <-> %11.2f (D=%11.2f)\n", bbox.MinX, bbox.MaxX, bbox.SpanX())
	fmt.Printf("[2] Bbox: y=%11.2f <-> %11.2f (D=%11.2f)\n", bbox.MinY, bbox.MaxY, bbox.SpanY())
	fmt.Printf("[2] Bbox: z=%11.2f <-> %11.2f (D=%11.2f)\n", bbox.MinZ, bbox.MaxZ, bbox.MaxZ-bbox.MinZ)

	// Stage 3: Pick random checkpoints
	fmt.Println("\n[3] Picking random checkpoints...")
	rngSeed := cfg.Validation.Seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))
	insertPts, checkpoints, err := data.Split(rng, cfg.Validation.CheckpointRatio)
	if err != nil {
		log.Fatalf("Failed to split checkpoints: %v", err)
	}
	fmt.Printf("[3] Checkpoints: %d (%.2f%%)  Rest of points: %d\n",
		len(checkpoints), 100*cfg.Validation.CheckpointRatio, len(insertPts))

	// Stage 4: Initialize the DEM map estimator
	fmt.Println("\n[4] Initializing GMRF DEM estimator...")
	start = time.Now()
	defaultVariance := cfg.Estimation.PriorStdDev * cfg.Estimation.PriorStdDev
	m, err := grid.New(bbox, cfg.Estimation.Resolution, grid.Cell{Variance: defaultVariance})
	if err != nil {
		log.Fatalf("Failed to create grid: %v", err)
	}
	estimator, err := gmrf.NewEstimator(m, gmrf.Params{
		LambdaPrior:  1 / (cfg.Estimation.PriorStdDev * cfg.Estimation.PriorStdDev),
		LambdaObs:    1.0,
		SkipVariance: cfg.Estimation.SkipVariance,
	})
	if err != nil {
		log.Fatalf("Failed to create estimator: %v", err)
	}
	estimator.Variance = &gmrf.HutchinsonEstimator{Probes: cfg.Estimation.VarianceProbes}
	fmt.Printf("[4] Done in %.3fs. Grid: %d x %d cells\n",
		time.Since(start).Seconds(), m.Rows(), m.Cols())

	// Stage 5: Insert points
	fmt.Printf("\n[5] Inserting %d points in DEM map...\n", len(insertPts))
	start = time.Now()
	for _, p := range insertPts {
		if err := estimator.InsertReading(p); err != nil {
			if errors.Is(err, gmrf.ErrInvalidObservation) {
				continue // skipped readings are counted by the estimator
			}
			log.Fatalf("Failed to insert reading: %v", err)
		}
	}
	fmt.Printf("[5] Done in %.3fs. Skipped readings: %d\n",
		time.Since(start).Seconds(), estimator.SkippedReadings())

	// Stage 6: Run the GMRF estimator
	fmt.Printf("\n[6] Running GMRF estimator (cell count=%d)...\n", m.Size())
	start = time.Now()
	report, err := estimator.UpdateMapEstimation()
	if err != nil {
		log.Fatalf("Map estimation failed: %v", err)
	}
	if !report.Converged {
		log.Printf("Warning: solver did not converge within %d iterations (residual %.3e); using best approximate solution",
			report.Iterations, report.Residual)
	}
	fmt.Printf("[6] Done in %.3fs. Iterations: %d  Residual: %.3e  Variance estimated: %v\n",
		time.Since(start).Seconds(), report.Iterations, report.Residual, report.VarianceEstimated)

	// Stage 7: Evaluate checkpoints
	if len(checkpoints) > 0 {
		fmt.Println("\n[7] Evaluating checkpoints...")
		start = time.Now()
		result := validation.Evaluate(m, checkpoints)
		if result.SkippedNN > 0 || result.SkippedBi > 0 {
			log.Printf("Warning: %d/%d checkpoint queries out of bounds (NN/Bi)",
				result.SkippedNN, result.SkippedBi)
		}

		if err := validation.SaveResiduals(prefix+"_chkpt_residuals_NN.txt", result.ResidualsNN); err != nil {
			log.Fatalf("Failed to save residuals: %v", err)
		}
		if err := validation.SaveResiduals(prefix+"_chkpt_residuals_Bi.txt", result.ResidualsBi); err != nil {
			log.Fatalf("Failed to save residuals: %v", err)
		}
		if err := validation.SaveStats(prefix+"_chkpt_residuals_NN_stats.txt", validation.Stats(result.ResidualsNN)); err != nil {
			log.Fatalf("Failed to save residual stats: %v", err)
		}
		if err := validation.SaveStats(prefix+"_chkpt_residuals_Bi_stats.txt", validation.Stats(result.ResidualsBi)); err != nil {
			log.Fatalf("Failed to save residual stats: %v", err)
		}
		fmt.Printf("[7] Done in %.3fs.\n", time.Since(start).Seconds())
	}

	// Stage 8: Export the fitted surfaces
	fmt.Println("\n[8] Exporting fitted surfaces...")
	start = time.Now()
	raster := visualization.NewRaster(m)
	if err := raster.SaveMeanMatrix(prefix + "_gmrf_mean.txt"); err != nil {
		log.Fatalf("Failed to save mean matrix: %v", err)
	}
	if err := raster.SaveStdMatrix(prefix + "_gmrf_std.txt"); err != nil {
		log.Fatalf("Failed to save std matrix: %v", err)
	}
	if cfg.Output.SaveRasters {
		if err := raster.SaveMeanPNG(prefix + "_gmrf_mean.png"); err != nil {
			log.Fatalf("Failed to save mean raster: %v", err)
		}
		if err := raster.SaveStdPNG(prefix + "_gmrf_std.png"); err != nil {
			log.Fatalf("Failed to save std raster: %v", err)
		}
	}
	if cfg.Output.SaveMesh {
		mesh := stl.NewHeightField(m)
		if err := stl.Write(prefix+"_gmrf_mesh.stl", mesh.GenerateTriangles()); err != nil {
			log.Fatalf("Failed to save mesh: %v", err)
		}
	}
	fmt.Printf("[8] Done in %.3fs.\n", time.Since(start).Seconds())

	// Stage 9: Save the point lists
	fmt.Println("\n[9] Saving point lists...")
	if err := dataset.SavePoints(prefix+"_pts_map.txt", insertPts); err != nil {
		log.Fatalf("Failed to save inserted points: %v", err)
	}
	if err := dataset.SavePoints(prefix+"_pts_chk.txt", checkpoints); err != nil {
		log.Fatalf("Failed to save checkpoint points: %v", err)
	}
	fmt.Println("[9] Done.")
}
