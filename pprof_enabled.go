//go:build pprof

package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

var cpuFile *os.File

func startCPUProfile() {
	var err error
	if cpuFile, err = os.Create("printloop-cpu.pprof"); err != nil {
		fmt.Fprintln(os.Stderr, "cpu profile:", err)
		return
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		fmt.Fprintln(os.Stderr, "cpu profile:", err)
	}
}

func stopCPUProfile() {
	if cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	cpuFile.Close()
}

func writeMemProfile() {
	memFile, err := os.Create("printloop-mem.pprof")
	if err != nil {
		fmt.Fprintln(os.Stderr, "heap profile:", err)
		return
	}
	defer memFile.Close()
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		fmt.Fprintln(os.Stderr, "heap profile:", err)
	}
}
