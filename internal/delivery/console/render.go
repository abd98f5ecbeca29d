package console

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/shelflens/backend/internal/domain"
)

// Format selects how results are printed
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// Render writes result to w in the given format
func Render(w io.Writer, format Format, result *domain.ShelfAnalysis) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result.Products)
	case FormatYAML:
		return renderYAML(w, result.Products)
	default:
		return renderTable(w, result)
	}
}

func renderJSON(w io.Writer, products []any) error {
	if products == nil {
		products = []any{}
	}
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func renderYAML(w io.Writer, products []any) error {
	if products == nil {
		products = []any{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func renderTable(w io.Writer, result *domain.ShelfAnalysis) error {
	if len(result.Products) == 0 {
		_, err := fmt.Fprintln(w, "No products detected.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tVISIBILITY")
	for _, item := range result.Products {
		product, visibility := tableRow(item)
		fmt.Fprintf(tw, "%s\t%s\n", product, visibility)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d product(s) from %d image(s), model %s\n",
		len(result.Products), result.ImageCount, result.Model)
	return err
}

// tableRow formats one list element; anything that is not a product record
// is shown as JSON with an unknown visibility
func tableRow(item any) (string, string) {
	switch v := item.(type) {
	case domain.ProductVisibility:
		return v.Product, formatPercent(v.Visibility)
	case map[string]any:
		product, ok := v["product"].(string)
		if !ok {
			break
		}
		if visibility, ok := v["visibility"].(float64); ok {
			return product, formatPercent(visibility)
		}
		return product, "?"
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprint(item), "?"
	}
	return string(data), "?"
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
