// Command synthreg generates a noisy synthetic line, fits a single neuron to
// it and reports the learned weights, the test loss and plots.
package main

import "github.com/synthreg/synthreg/internal/cli"

func main() {
	cli.Execute()
}
