//go:build ignore

// build.go builds and tests diveops.
// Usage: go run build.go [-target=build|test|clean|all] [-v]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	module = "diveops"
	binDir = "bin"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
)

func main() {
	target := flag.String("target", "all", "Build target: build, test, clean or all")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	start := time.Now()
	var err error
	switch *target {
	case "build":
		err = build(*verbose)
	case "test":
		err = test(*verbose)
	case "clean":
		err = os.RemoveAll(binDir)
	case "all":
		if err = test(*verbose); err == nil {
			err = build(*verbose)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("%s completed in %s", *target, time.Since(start).Round(time.Millisecond)))
}

func build(verbose bool) error {
	out := filepath.Join(binDir, "diveops")
	if runtime.GOOS == "windows" {
		out += ".exe"
	}
	ldflags := strings.Join([]string{
		"-s -w",
		"-X " + module + "/pkg/contracts.BuildTime=" + time.Now().UTC().Format(time.RFC3339),
		"-X " + module + "/pkg/contracts.GitCommit=" + gitCommit(),
	}, " ")

	printInfo("building " + out)
	return run(verbose, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", out, "./cmd/diveops")
}

func test(verbose bool) error {
	printInfo("running tests")
	args := []string{"test", "-race", "-count=1", "./..."}
	if verbose {
		args = append(args, "-v")
	}
	return run(true, "go", args...)
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func run(verbose bool, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}
