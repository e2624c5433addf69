package main

import (
	"log"
	"os"

	"github.com/loomkit/loom"
)

// Builds a small counter component with a conditional branch, flips it a few
// times and dumps the effect tree after each step. Handy for eyeballing
// ownership, pause state and dependency counts.
func main() {
	rt := loom.NewRuntime()

	count := loom.NewCell(rt, 0)
	parity := loom.NewDerived(rt, func() string {
		if count.Value()%2 == 0 {
			return "even"
		}
		return "odd"
	})

	handle, err := loom.Mount(rt, func(a *loom.Anchor, _ map[string]any) error {
		loom.NewEffect(rt, loom.KindRender, func() error {
			log.Printf("count=%d parity=%s", count.Value(), parity.Value())
			return nil
		})
		loom.RenderIf(rt, a,
			func() bool { return count.Value()%2 == 0 },
			func(*loom.Anchor) error {
				loom.NewEffect(rt, loom.KindRender, func() error {
					log.Printf("even branch sees %d", count.Value())
					return nil
				})
				return nil
			},
			func(*loom.Anchor) error {
				loom.NewEffect(rt, loom.KindRender, func() error {
					log.Printf("odd branch sees %d", count.Value())
					return nil
				})
				return nil
			},
		)
		return nil
	}, loom.MountOptions{})
	if err != nil {
		log.Fatal(err)
	}

	log.Print("after mount")
	loom.DumpTree(rt, os.Stdout)

	for i := 1; i <= 3; i++ {
		count.SetValue(i)
		log.Printf("after write %d", i)
		loom.DumpTree(rt, os.Stdout)
	}

	handle.Unmount()
	log.Print("after unmount")
	loom.DumpTree(rt, os.Stdout)
}
