package tablecopy

import (
	"context"
	"fmt"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
)

// OrdersPerUser is how many ORDER items follow each PROFILE item.
const OrdersPerUser = 3

var sampleProducts = []string{"Product A", "Product B", "Product C", "Product D", "Product E"}

// SampleItems builds users PROFILE items, each followed by OrdersPerUser ORDER
// items sharing its id. Keys are id (partition) and type (sort).
func SampleItems(users int) []Item {
	items := make([]Item, 0, users*(1+OrdersPerUser))
	for u := 1; u <= users; u++ {
		id := fmt.Sprintf("USER#%03d", u)
		items = append(items, Item{
			"id":    &ddbtypes.AttributeValueMemberS{Value: id},
			"type":  &ddbtypes.AttributeValueMemberS{Value: "PROFILE"},
			"name":  &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("User %03d", u)},
			"email": &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("user%03d@example.com", u)},
			"age":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprint(20 + u%50)},
		})
		for o := 1; o <= OrdersPerUser; o++ {
			items = append(items, Item{
				"id":       &ddbtypes.AttributeValueMemberS{Value: id},
				"type":     &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%03d", o)},
				"product":  &ddbtypes.AttributeValueMemberS{Value: sampleProducts[o%len(sampleProducts)]},
				"price":    &ddbtypes.AttributeValueMemberN{Value: fmt.Sprint(1000 + o*500)},
				"quantity": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprint(1 + o%5)},
			})
		}
	}
	return items
}

// Seed writes SampleItems(users) into table. In dry-run mode nothing is written.
func (c *Copier) Seed(ctx context.Context, table string, users int) (int, error) {
	if table == "" {
		return 0, apperr.Config("seed table is required", nil)
	}
	if users < 1 {
		return 0, apperr.Config(fmt.Sprintf("seed user count must be positive, got %d", users), nil)
	}
	items := SampleItems(users)
	if c.DryRun {
		c.logger.Info("seed dry run", zap.String("table", table), zap.Int("items", len(items)))
		return 0, nil
	}
	n, err := c.WriteAll(ctx, table, items)
	if err != nil {
		return n, err
	}
	c.logger.Info("seed finished", zap.String("table", table), zap.Int("users", users), zap.Int("items", n))
	return n, nil
}
