package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/fieldsync/internal/pricing"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

func newPriceCommand(rt *runtime) *cobra.Command {
	var product, unit, price string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Check a negotiated price against the product's discount ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseUUID("product", product)
			if err != nil {
				return err
			}
			kind, err := enums.ParseUnitKind(unit)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unit must be main or sub")
			}
			amount, err := decimal.NewFromString(price)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a number")
			}
			p, err := rt.app.store.GetProduct(cmd.Context(), productID)
			if err != nil {
				return err
			}
			verdict, err := pricing.Validate(p, pricing.Candidate{Price: amount, Unit: kind})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s per %s\n", p.Name, pricing.UnitLabel(p, kind))
			fmt.Fprintf(out, "main unit equivalent: %s\n", verdict.MainUnitPrice.StringFixed(2))
			fmt.Fprintf(out, "discount:             %s%%\n", verdict.DiscountPercent.StringFixed(2))
			if verdict.MinPrice != nil {
				fmt.Fprintf(out, "minimum price:        %s\n", verdict.MinPrice.StringFixed(2))
			}
			if verdict.Valid {
				fmt.Fprintln(out, "ok")
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "price is below the allowed minimum").
				WithDetails(map[string]any{"discount_percent": verdict.DiscountPercent.StringFixed(2)})
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "product id")
	cmd.Flags().StringVar(&unit, "unit", string(enums.UnitKindMain), "main or sub")
	cmd.Flags().StringVar(&price, "price", "", "price per selected unit")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}
