package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/loomkit/loom"
	"github.com/urfave/cli/v3"
)

const (
	itersKey   = "iters"
	batchedKey = "batched"
)

func main() {
	cmd := &cli.Command{
		Name:  "bench",
		Usage: "Measure loom write-to-effect propagation latency",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Writes per grid shape",
				Value: 100,
			},
			&cli.BoolFlag{
				Name:  batchedKey,
				Usage: "Wrap each write in a batch",
				Value: false,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100, 1_000}
)

func run(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(itersKey))
	batched := cmd.Bool(batchedKey)

	log.Printf("propagation benchmark, %s writes per shape, batched=%v",
		humanize.Comma(int64(iters)), batched)
	start := time.Now()
	defer func() {
		log.Printf("finished in %v", time.Since(start))
	}()

	tbl := table.NewWriter()
	tbl.SetTitle("loom propagate")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "effects run", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rt := loom.NewRuntime()
			src := loom.NewCell(rt, 1)

			// w independent chains of h derivations hang off one source,
			// each chain ending in an effect. One write touches everything.
			var effectRuns int64
			for i := 0; i < w; i++ {
				last := loom.NewDerived(rt, func() int {
					return src.Value() + 1
				})
				for j := 1; j < h; j++ {
					prev := last
					last = loom.NewDerived(rt, func() int {
						return prev.Value() + 1
					})
				}
				loom.NewEffect(rt, loom.KindPlain, func() error {
					last.Value()
					effectRuns++
					return nil
				})
			}

			write := func() {
				src.SetValue(src.Peek() + 1)
			}
			for i := 0; i < iters; i++ {
				began := time.Now()
				if batched {
					rt.Batch(write)
				} else {
					write()
				}
				tach.AddTime(time.Since(began))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					humanize.Comma(effectRuns),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
	return nil
}
