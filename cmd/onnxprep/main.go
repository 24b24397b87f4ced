// onnxprep reads a graph in the textual IR form, runs the ONNX export preprocessing passes, and prints
// the resulting graph.
//
// Usage:
//
//	onnxprep run [--config=options.yaml] [--dce] [--strict-accumulate] [--lint] <file.ir>
//	onnxprep lint <file.ir>
package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()
	if err := newRootCommand(flag.CommandLine).Execute(); err != nil {
		os.Exit(1)
	}
}
