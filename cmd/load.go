package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/cairnmed/lucent/internal/config"
	"github.com/cairnmed/lucent/internal/index"
	"github.com/cairnmed/lucent/internal/ingest"
	"github.com/cairnmed/lucent/internal/model"
	"github.com/cairnmed/lucent/internal/pixel"
	"github.com/cairnmed/lucent/internal/preload"
)

var (
	runPreload bool
	cursor     int
)

func init() {
	loadCmd.Flags().BoolVar(&runPreload, "preload", false, "Run a preload pass with a synthetic decoder")
	loadCmd.Flags().IntVar(&cursor, "cursor", 0, "Cursor position for the preload window")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load [source]",
	Short: "Ingest a JSON manifest or SQLite catalog and print the hierarchy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		tree := model.NewTree()
		queue := model.NewQueue(256)
		defer queue.Close()

		var view *index.View
		queue.Sync(func() { view = index.New(tree) })

		abs, err := filepath.Abs(source)
		if err != nil {
			return fmt.Errorf("resolve source %s: %w", source, err)
		}
		engine := ingest.NewEngine(osfs.New(filepath.Dir(abs)))
		sink := &ingest.ModelSink{Queue: queue, Tree: tree}

		n, err := engine.Load(filepath.Base(abs), sink)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", source, err)
		}
		sink.Flush()
		fmt.Printf("Ingested %d records from %s\n", n, source)

		queue.Sync(func() { printHierarchy(tree, view) })

		if runPreload {
			return preloadPass(cfg, tree, queue, view)
		}
		return nil
	},
}

func printHierarchy(tree *model.Tree, view *index.View) {
	for _, p := range view.Patients() {
		mark := " "
		if p == tree.Selected() {
			mark = "*"
		}
		fmt.Printf("%s %s (%s)\n", mark, tree.AttrString(p, model.TagPatientName), tree.Key(p))
		for _, st := range view.Studies(p) {
			fmt.Printf("    study %s  %s\n", tree.Key(st), tree.AttrString(st, model.TagStudyDescription))
			for _, se := range view.Series(st) {
				fmt.Printf("        series %-6s %s [%s]  %d instances\n",
					tree.SeriesLabel(se),
					tree.AttrString(se, model.TagSeriesDescription),
					tree.AttrString(se, model.TagModality),
					len(tree.Children(se)))
			}
		}
	}
}

// preloadPass runs the scheduler over every series with a synthetic
// decoder, reporting how many instances each pass made resident.
func preloadPass(cfg config.Config, tree *model.Tree, queue *model.Queue, view *index.View) error {
	cache, err := pixel.NewCache(cfg.CacheEntries)
	if err != nil {
		return err
	}
	var gauge pixel.MemoryGauge = pixel.SysinfoGauge{}
	if cfg.TotalBytes > 0 {
		gauge = pixel.FixedGauge{Total: cfg.TotalBytes, Free: cfg.FreeBytes}
	}

	// Progress flows back through the queue so listeners observe it on
	// the model goroutine.
	sched := preload.New(pixel.SyntheticDecoder(), cache, gauge, func(p preload.Progress) {
		queue.Post(func() { tree.EmitPreloaded(p.Series, p.SOPUID) })
	})
	sched.SetBudgetDivisor(cfg.BudgetDivisor)
	defer sched.Stop()

	var snaps []preload.Snapshot
	queue.Sync(func() {
		for _, p := range view.Patients() {
			for _, st := range view.Studies(p) {
				for _, se := range view.Series(st) {
					snaps = append(snaps, preload.SnapshotSeries(tree, se, cursor))
				}
			}
		}
	})

	for _, snap := range snaps {
		sched.Start(snap)
		sched.Wait()
		var resident int
		for _, ok := range cache.ResidentMask(uids(snap)) {
			if ok {
				resident++
			}
		}
		fmt.Printf("preload %s: %d/%d resident (%s)\n",
			snap.SeriesKey, resident, len(snap.Instances), sched.State())
	}
	return nil
}

func uids(snap preload.Snapshot) []string {
	out := make([]string, len(snap.Instances))
	for i, info := range snap.Instances {
		out[i] = info.SOPInstanceUID
	}
	return out
}
