package email

import (
	"fmt"
	"html"
)

// Confirmation is what the customer is told about a placed order
type Confirmation struct {
	OrderID       int64
	CustomerName  string
	ProductName   string
	Quantity      int
	Rate          string
	Total         string
	DueDate       string
	PaymentStatus string
}

// BuildOrderConfirmationBody builds the HTML body for order confirmation email
func BuildOrderConfirmationBody(c Confirmation) string {
	esc := html.EscapeString
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Thank you for your order, %s</h1>
	<p>Order number <strong>#%d</strong></p>
	<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr>
				<th style="padding: 8px; text-align: left;">Product</th>
				<th style="padding: 8px; text-align: center;">Quantity</th>
				<th style="padding: 8px; text-align: right;">Rate</th>
				<th style="padding: 8px; text-align: right;">Total</th>
			</tr>
		</thead>
		<tbody>
			<tr>
				<td style="padding: 8px;">%s</td>
				<td style="padding: 8px; text-align: center;">%d</td>
				<td style="padding: 8px; text-align: right;">%s</td>
				<td style="padding: 8px; text-align: right;">%s</td>
			</tr>
		</tbody>
	</table>
	<p>Delivery due on <strong>%s</strong>. Payment status: <strong>%s</strong>.</p>
	<p style="font-size: 12px; color: #999;">This email was sent automatically.</p>
</body>
</html>`,
		esc(c.CustomerName), c.OrderID,
		esc(c.ProductName), c.Quantity, esc(c.Rate), esc(c.Total),
		esc(c.DueDate), esc(c.PaymentStatus))
}
