// Command quotecalc prices a service selection offline with the same engine
// the API uses.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/quote"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type estimateOptions struct {
	services  []string
	property  string
	bedrooms  int
	bathrooms int
	sqft      string
	format    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	var rulesFile string
	root := &cobra.Command{
		Use:           "quotecalc",
		Short:         "Estimate MapleFresh service prices from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&rulesFile, "rules", "", "pricing rules JSON file (defaults to the built-in rate table)")

	opts := estimateOptions{}
	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Price a selection of services for a property",
		Example: `  quotecalc estimate --services moving,cleaning --property house --bedrooms 3 --bathrooms 2 --sqft 1800
  quotecalc estimate --services handyman --property office --sqft 500 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := pricing.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			return runEstimate(cmd.OutOrStdout(), opts, rules)
		},
	}
	estimate.Flags().StringSliceVar(&opts.services, "services", nil, "comma separated services: moving, cleaning, handyman")
	estimate.Flags().StringVar(&opts.property, "property", "house", "property type: house, condo, apartment, office")
	estimate.Flags().IntVar(&opts.bedrooms, "bedrooms", 1, "number of bedrooms")
	estimate.Flags().IntVar(&opts.bathrooms, "bathrooms", 1, "number of bathrooms")
	estimate.Flags().StringVar(&opts.sqft, "sqft", "1000", "square footage")
	estimate.Flags().StringVarP(&opts.format, "format", "f", "table", "output format: table or json")
	_ = estimate.MarkFlagRequired("services")

	rules := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective pricing rules as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := pricing.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}

	root.AddCommand(estimate, rules)
	return root
}

func runEstimate(out io.Writer, opts estimateOptions, rules pricing.Rules) error {
	sqft, err := decimal.NewFromString(strings.TrimSpace(opts.sqft))
	if err != nil {
		return fmt.Errorf("invalid --sqft %q", opts.sqft)
	}
	in := quote.Input{
		Services:      opts.services,
		PropertyType:  opts.property,
		Bedrooms:      opts.bedrooms,
		Bathrooms:     opts.bathrooms,
		SquareFootage: sqft,
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return describe(err)
	}
	b := pricing.Compute(in.Request(), rules)

	switch strings.ToLower(opts.format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case "table", "":
		return writeTable(out, b)
	default:
		return fmt.Errorf("unknown --format %q", opts.format)
	}
}

func writeTable(out io.Writer, b pricing.Breakdown) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SERVICE\tITEM\tAMOUNT\t")
	for _, item := range b.Items {
		fmt.Fprintf(tw, "%s\tbase\t%s\t\n", item.Service, pricing.Format(item.BasePrice))
		for _, c := range item.AdditionalCharges {
			amount := pricing.Format(c.Amount)
			if c.Amount.IsZero() {
				amount = "-"
			}
			fmt.Fprintf(tw, "\t%s\t%s\t\n", c.Label, amount)
		}
		fmt.Fprintf(tw, "\tsubtotal\t%s\t\n", pricing.Format(item.Subtotal))
	}
	fmt.Fprintf(tw, "\t\t\t\n")
	fmt.Fprintf(tw, "Subtotal\t\t%s\t\n", pricing.Format(b.Subtotal))
	if b.BundleDiscount.IsPositive() {
		fmt.Fprintf(tw, "Bundle discount\t\t-%s\t\n", pricing.Format(b.BundleDiscount))
	}
	fmt.Fprintf(tw, "Taxes\t\t%s\t\n", pricing.Format(b.Taxes))
	fmt.Fprintf(tw, "Total (%s)\t\t%s\t\n", b.Currency, pricing.Format(b.Total))
	return tw.Flush()
}

func describe(err error) error {
	fields := common.FieldErrors(err)
	if len(fields) == 0 {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return errors.New("invalid input: " + strings.Join(msgs, "; "))
}
