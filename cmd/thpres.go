/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"sort"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/blackoil/InputParameters"
	"github.com/notargets/blackoil/grid"
	"github.com/notargets/blackoil/restart"
	"github.com/notargets/blackoil/thpres"
	"github.com/notargets/blackoil/types"
	"github.com/notargets/blackoil/utils"
)

type ThresholdRun struct {
	ICFile         string
	ParallelDegree int
	RestartDB      string
	RunID          string
	Step           int
	Write          bool
	Cells          []int // natural cell pairs to query
}

type ThresholdResult struct {
	RunID      string
	NumRegions int
	Data       []float64
	Summary    string
	Step       int       // report step written, or restarted from
	Queries    []float64 // threshold per queried cell pair
}

// ThresholdCmd represents the thpres command
var ThresholdCmd = &cobra.Command{
	Use:   "thpres",
	Short: "Derive the threshold pressures between equilibration regions",
	Long: `Derive the threshold pressure table of a black-oil case from its initial
condition and explicit THPRES / THPRESFT records, or load it from a restart
database when the case is a restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		tr := &ThresholdRun{
			ICFile:         viper.GetString("thpres.inputConditionsFile"),
			ParallelDegree: viper.GetInt("thpres.parallel"),
			RestartDB:      viper.GetString("thpres.restartDB"),
			RunID:          viper.GetString("thpres.runID"),
			Step:           viper.GetInt("thpres.step"),
			Write:          viper.GetBool("thpres.write"),
		}
		var err error
		if tr.Cells, err = cmd.Flags().GetIntSlice("cells"); err != nil {
			log.Fatal(err)
		}
		ip, err := processThresholdInput(tr)
		if err != nil {
			log.Fatal(err)
		}
		res, err := RunThreshold(tr, ip)
		if err != nil {
			log.Fatal(err)
		}
		if res.RunID != "" {
			fmt.Printf("run %s\n", res.RunID)
		}
		if tr.Write {
			fmt.Printf("wrote threshold pressures at report step %d\n", res.Step)
		}
		for i, v := range res.Queries {
			fmt.Printf("threshold(%d, %d) = %g\n", tr.Cells[2*i], tr.Cells[2*i+1], v)
		}
	},
}

func init() {
	rootCmd.AddCommand(ThresholdCmd)
	var (
		flags = ThresholdCmd.Flags()
	)
	flags.StringP("inputConditionsFile", "I", "", "YAML file for the case description")
	flags.IntP("parallel", "n", 0, "number of ranks, overrides ParallelDegree of the case, default 1")
	flags.String("restartDB", "", "sqlite database holding threshold pressure vectors")
	flags.String("runID", "", "run to read on restart, the latest run when empty")
	flags.Int("step", restart.AnyStep, "report step to restart from, the latest when absent")
	flags.Bool("write", false, "store the final table in the restart database")
	flags.IntSlice("cells", nil, "natural cell index pairs to query, e.g. --cells 0,1,4,5")
	for _, name := range []string{"inputConditionsFile", "parallel", "restartDB", "runID", "step", "write"} {
		_ = viper.BindPFlag("thpres."+name, flags.Lookup(name))
	}
}

func processThresholdInput(tr *ThresholdRun) (ip *InputParameters.ThresholdParameters, err error) {
	if len(tr.ICFile) == 0 {
		exampleFile := `
########################################
Title: "Two region slab"
Dims: [4, 1, 2]
Spacing: [100, 100, 10]
TopDepth: 2000
EQLNUM: [1, 1, 2, 2, 1, 1, 2, 2]
Equil:
  - {DatumDepth: 2000, DatumPressure: 2.0e7, Saturations: {Water: 0.3, Oil: 0.7}}
  - {DatumDepth: 2000, DatumPressure: 2.05e7, Saturations: {Water: 0.3, Oil: 0.7}}
ThresholdPressure: true
THPRES:
  - Regions: [1, 2]
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
	}
	var data []byte
	if data, err = ioutil.ReadFile(tr.ICFile); err != nil {
		return
	}
	ip = &InputParameters.ThresholdParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, err
	}
	ip.Print()
	return
}

func RunThreshold(tr *ThresholdRun, ip *InputParameters.ThresholdParameters) (res *ThresholdResult, err error) {
	var (
		g      *grid.Cartesian
		eqlnum []int
		cfg    thpres.Config
		st     *grid.InitialState
		fluid  grid.Fluid
		store  *restart.Store
		stored []float64
	)
	NP := tr.ParallelDegree
	if NP == 0 {
		NP = ip.ParallelDegree
	}
	if NP < 1 {
		NP = 1
	}
	if g, err = ip.BuildGrid(); err != nil {
		return
	}
	if NP > g.Size() {
		NP = g.Size()
	}
	if eqlnum, err = ip.RegionTags(g); err != nil {
		return
	}
	if cfg, err = ip.ToConfig(g, eqlnum); err != nil {
		return
	}
	res = &ThresholdResult{}
	if cfg.Enabled {
		// Ranks that fail before a collective would leave the others waiting,
		// so region input is checked on the whole grid first
		if _, _, err = thpres.BuildRegionMap(cfg.EquilRegions, cfg.NumEquilRegions, g); err != nil {
			return nil, err
		}
	}
	if len(tr.RestartDB) != 0 {
		if store, err = restart.NewStore(tr.RestartDB); err != nil {
			return nil, err
		}
		defer store.Close()
	}
	if cfg.Enabled && cfg.Restart {
		if store == nil {
			return nil, fmt.Errorf("a restart needs a restart database (--restartDB)")
		}
		if res.RunID = tr.RunID; res.RunID == "" {
			if res.RunID, err = store.LatestRun(); err != nil {
				return nil, err
			}
		}
		if res.Step = tr.Step; res.Step == restart.AnyStep {
			if res.Step, err = store.LatestStep(res.RunID); err != nil {
				return nil, err
			}
		}
		if _, stored, err = store.ReadThresholds(res.RunID, res.Step); err != nil {
			return nil, err
		}
		log.Printf("restarting run %s from report step %d", res.RunID, res.Step)
	} else if cfg.Enabled {
		var recs []grid.EquilRecord
		if recs, err = ip.EquilRecords(); err != nil {
			return nil, err
		}
		if fluid, err = ip.FluidProps(); err != nil {
			return nil, err
		}
		if st, err = grid.Equilibrate(g, eqlnum, recs, fluid); err != nil {
			return nil, err
		}
	}

	var (
		comm   = utils.NewCommunicator(NP)
		parts  = g.Partition(NP)
		tps    = make([]*thpres.ThresholdPressure, NP)
		errs   = make([]error, NP)
		tables = make([][]float64, NP)
		wg     = sync.WaitGroup{}
	)
	for np := 0; np < NP; np++ {
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			var (
				faces thpres.FaceQuantityProvider
				cells thpres.CellMapper = parts[np]
			)
			if st != nil {
				fq := grid.NewFaceQuantities(g, parts[np], st, fluid)
				faces, cells = fq, fq
			}
			rc := comm.Rank(np)
			tp := thpres.NewThresholdPressure(cfg, faces, cells, rc)
			if errs[np] = tp.FinishInit(); errs[np] != nil {
				return
			}
			if cfg.Enabled && cfg.Restart {
				if errs[np] = tp.SetFromRestart(stored); errs[np] != nil {
					return
				}
			}
			tp.LogSummary(rc.MyRank())
			tps[np], tables[np] = tp, tp.Data()
		}(np)
	}
	wg.Wait()
	for np, e := range errs {
		if e != nil {
			return nil, fmt.Errorf("rank %d: %w", np, e)
		}
	}
	for np := 1; np < NP; np++ {
		if diff := cmp.Diff(tables[0], tables[np]); diff != "" {
			return nil, fmt.Errorf("rank %d threshold table differs from rank 0 (-rank0 +rank%d):\n%s", np, np, diff)
		}
	}
	ioRank := tps[0]
	res.NumRegions, res.Data, res.Summary = ioRank.NumRegions(), tables[0], ioRank.Summary()
	if ioRank.Enabled() {
		fmt.Printf("THPRES = \n%v\n", ioRank.Table())
		barriers := ioRank.Table().Barriers()
		pairs := make([]types.RegionPair, 0, len(barriers))
		for rp := range barriers {
			pairs = append(pairs, rp)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i][0] != pairs[j][0] {
				return pairs[i][0] < pairs[j][0]
			}
			return pairs[i][1] < pairs[j][1]
		})
		for _, rp := range pairs {
			fmt.Printf("THPRES %v = %g\n", rp, barriers[rp])
		}
	}

	if tr.Write && ioRank.Enabled() {
		if store == nil {
			return nil, fmt.Errorf("writing threshold pressures needs a restart database (--restartDB)")
		}
		if cfg.Restart {
			// a restarted run appends after its stored steps
			var latest int
			if latest, err = store.LatestStep(res.RunID); err != nil {
				return nil, err
			}
			res.Step = latest + 1
		} else {
			if res.RunID, err = store.NewRun(ip.Title); err != nil {
				return nil, err
			}
			if res.Step = tr.Step; res.Step == restart.AnyStep {
				res.Step = 0
			}
		}
		if err = store.WriteThresholds(res.RunID, res.Step, res.NumRegions, res.Data); err != nil {
			return nil, err
		}
	}

	if len(tr.Cells) != 0 {
		if res.Queries, err = queryThresholds(cfg, g, res.Data, tr.Cells); err != nil {
			return nil, err
		}
	}
	return
}

// queryThresholds answers threshold lookups on natural cell pairs from a
// single rank view of the whole grid, loaded with the final table.
func queryThresholds(cfg thpres.Config, g *grid.Cartesian, data []float64, cells []int) (values []float64, err error) {
	if len(cells)%2 != 0 {
		return nil, fmt.Errorf("cell queries come in pairs, have %d indices", len(cells))
	}
	for _, c := range cells {
		if c < 0 || c >= g.Size() {
			return nil, fmt.Errorf("cell %d outside grid of %d cells", c, g.Size())
		}
	}
	cfg.Restart = true
	tp := thpres.NewThresholdPressure(cfg, nil, g, nil)
	if err = tp.FinishInit(); err != nil {
		return
	}
	if err = tp.SetFromRestart(data); err != nil {
		return
	}
	for i := 0; i < len(cells); i += 2 {
		values = append(values, tp.Threshold(cells[i], cells[i+1]))
	}
	return
}
