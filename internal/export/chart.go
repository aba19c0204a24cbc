package export

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"cashbook/internal/core"
)

// CategoryPalette colours the chart slices in breakdown order, wrapping
// around when there are more slices than colours.
var CategoryPalette = []string{
	"0088FE",
	"00C49F",
	"FFBB28",
	"FF8042",
	"A28CFF",
	"FF66A3",
	"CCCCCC",
}

const (
	chartWidth  = 512
	chartHeight = 512
)

// SliceLabel is the caption of one chart slice, e.g. "Food: 75%".
func SliceLabel(c core.CategoryAmount) string {
	return fmt.Sprintf("%s: %d%%", c.Name, int(math.Round(c.Percent)))
}

// WriteChart renders the OUT breakdown as a PNG pie chart.
func WriteChart(w io.Writer, breakdown []core.CategoryAmount) error {
	if len(breakdown) == 0 {
		return ErrNothingToExport
	}

	values := make([]chart.Value, 0, len(breakdown))
	for i, c := range breakdown {
		color := drawing.ColorFromHex(CategoryPalette[i%len(CategoryPalette)])
		values = append(values, chart.Value{
			Label: SliceLabel(c),
			Value: c.Amount.InexactFloat64(),
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 1,
			},
		})
	}

	pie := chart.PieChart{
		Width:  chartWidth,
		Height: chartHeight,
		Values: values,
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
