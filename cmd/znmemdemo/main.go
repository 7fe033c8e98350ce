// Command znmemdemo exercises the GlobalAllocator façade end to end,
// allocating and freeing across all four size classes and logging each
// allocation and free through the structured logger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gspizzico/Zn-sub000/internal/galloc"
	"github.com/gspizzico/Zn-sub000/internal/logx"
)

var log = logx.Category("znmemdemo")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var useDefaultMallocOnly bool

	root := &cobra.Command{
		Use:   "znmemdemo",
		Short: "Exercise the global memory allocator across all size classes",
	}
	root.PersistentFlags().BoolVar(&useDefaultMallocOnly, "use-default-malloc", false,
		"pin the process to the bootstrap allocator instead of the multi-strategy one")

	run := &cobra.Command{
		Use:   "run",
		Short: "Allocate and free a representative block from every size class",
		RunE: func(cmd *cobra.Command, args []string) error {
			galloc.Bootstrap(useDefaultMallocOnly)
			return runDemo()
		},
	}
	root.AddCommand(run)
	return root
}

// sizeClasses covers tiny, small/bucket, medium and direct in order.
var sizeClasses = []struct {
	name string
	size uintptr
}{
	{"tiny", 48},
	{"small", 2048},
	{"medium", 256 * 1024},
	{"direct", 4 * 1024 * 1024},
}

func runDemo() error {
	var addrs []uintptr
	for _, class := range sizeClasses {
		addr, err := galloc.Malloc(class.size)
		if err != nil {
			return fmt.Errorf("malloc %s (%d bytes): %w", class.name, class.size, err)
		}
		log.Info("allocated", "class", class.name, "size", class.size, "addr", fmt.Sprintf("%#x", addr))
		addrs = append(addrs, addr)
	}

	for i, addr := range addrs {
		if err := galloc.Free(addr); err != nil {
			return fmt.Errorf("free %s: %w", sizeClasses[i].name, err)
		}
		log.Info("freed", "class", sizeClasses[i].name, "addr", fmt.Sprintf("%#x", addr))
	}

	log.Info("demo completed", "classes", len(sizeClasses))
	return nil
}
