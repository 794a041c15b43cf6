package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const plotWidth = 60

// lossPlot draws a vertical bar chart of the most recent values, scaled so
// the largest fills every row.
func lossPlot(w io.Writer, values []float64) {
	const height = 10
	if len(values) > plotWidth {
		values = values[len(values)-plotWidth:]
	}
	n := len(values)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	top := floats.Max(values)
	if top <= 0 {
		top = 1
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		var b strings.Builder
		for _, v := range values {
			if v/top >= threshold {
				b.WriteString("█")
			} else {
				b.WriteByte(' ')
			}
		}
		fmt.Fprintln(w, b.String())
	}
	fmt.Fprintln(w, strings.Repeat("─", n))
	var axis strings.Builder
	for i := range values {
		if i%5 == 0 {
			axis.WriteString(strconv.Itoa(i % 10))
		} else {
			axis.WriteByte(' ')
		}
	}
	fmt.Fprintln(w, axis.String())
	fmt.Fprintf(w, "max %.4f, last %.4f\n", top, values[n-1])
}
