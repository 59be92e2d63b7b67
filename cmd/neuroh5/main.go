package main

import "github.com/soltesz-lab/neuroh5/cmd/neuroh5/cmd"

func main() {
	cmd.Execute()
}
