// Command carsearch builds, queries and inspects the listing index from
// the command line.
//
// Usage:
//
//	carsearch build --source data/anuncios.json
//	carsearch search hilux 2022 diesel
//	carsearch search -f consultas.txt -o saida.csv -k 20
//	carsearch inspect civic
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
