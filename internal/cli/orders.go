package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/fieldsync/internal/orders"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

func newOrdersCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List the rep's orders grouped by sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repID, err := rt.repID()
			if err != nil {
				return err
			}
			buckets, err := rt.app.transmit.LoadOrders(cmd.Context(), repID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCUSTOMER\tTOTAL\tSTATUS\tSYNC\tCREATED\tLAST ERROR")
			for _, group := range [][]models.Order{buckets.Pending, buckets.Error, buckets.Transmitted, buckets.Synced} {
				writeOrders(w, group)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(newOrderCreateCommand(rt), newOrderNegateCommand(rt))
	return cmd
}

func writeOrders(w io.Writer, rows []models.Order) {
	for _, o := range rows {
		lastErr := ""
		if o.LastError != nil {
			lastErr = *o.LastError
		}
		customer := o.CustomerName
		if customer == "" {
			customer = o.CustomerID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, customer, o.Total.StringFixed(2), o.Status, o.SyncStatus, o.CreatedAt.Format(time.RFC3339), lastErr)
	}
}

func newOrderCreateCommand(rt *runtime) *cobra.Command {
	var (
		customer, notes, payment, table string
		items                           []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a sale for a client",
		Long: `Record a sale. Each --item is product-id:quantity[:main|sub[:unit-price]].
Without a unit price the list price of the unit is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repID, err := rt.repID()
			if err != nil {
				return err
			}
			customerID, err := parseUUID("customer", customer)
			if err != nil {
				return err
			}
			input := orders.Input{
				RepID:         repID,
				CustomerID:    customerID,
				Notes:         notes,
				PaymentMethod: payment,
			}
			if table != "" {
				id, err := parseUUID("payment-table", table)
				if err != nil {
					return err
				}
				input.PaymentTableID = &id
			}
			for i, raw := range items {
				item, err := parseItem(raw)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("item %d", i)).
						WithDetails(map[string]any{"item": raw})
				}
				input.Items = append(input.Items, item)
			}

			order, err := rt.app.orders.CreateOrder(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s total %s (%s)\n", order.ID, order.Total.StringFixed(2), order.SyncStatus)
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "client id")
	cmd.Flags().StringArrayVar(&items, "item", nil, "order line, repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "free text notes")
	cmd.Flags().StringVar(&payment, "payment-method", "", "payment method")
	cmd.Flags().StringVar(&table, "payment-table", "", "payment table id")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newOrderNegateCommand(rt *runtime) *cobra.Command {
	var customer, reason, notes string
	cmd := &cobra.Command{
		Use:   "negate",
		Short: "Record a visit that produced no sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repID, err := rt.repID()
			if err != nil {
				return err
			}
			customerID, err := parseUUID("customer", customer)
			if err != nil {
				return err
			}
			order, err := rt.app.orders.RegisterNegation(cmd.Context(), orders.NegationInput{
				RepID:      repID,
				CustomerID: customerID,
				Reason:     reason,
				Notes:      notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded negation %s\n", order.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "client id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the client did not buy")
	cmd.Flags().StringVar(&notes, "notes", "", "free text notes")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be a uuid")
	}
	return id, nil
}

func parseItem(raw string) (orders.ItemInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return orders.ItemInput{}, fmt.Errorf("expected product-id:quantity[:unit[:price]], got %q", raw)
	}
	productID, err := uuid.Parse(parts[0])
	if err != nil {
		return orders.ItemInput{}, fmt.Errorf("product id: %w", err)
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil {
		return orders.ItemInput{}, fmt.Errorf("quantity: %w", err)
	}
	item := orders.ItemInput{ProductID: productID, Quantity: qty, Unit: enums.UnitKindMain}
	if len(parts) >= 3 && parts[2] != "" {
		unit, err := enums.ParseUnitKind(parts[2])
		if err != nil {
			return orders.ItemInput{}, err
		}
		item.Unit = unit
	}
	if len(parts) == 4 {
		price, err := decimal.NewFromString(parts[3])
		if err != nil {
			return orders.ItemInput{}, fmt.Errorf("unit price: %w", err)
		}
		item.UnitPrice = &price
	}
	return item, nil
}
