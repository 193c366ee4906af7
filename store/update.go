package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sicko7947/campaignflow"
)

// updateBuilder accumulates a versioned UpdateItem expression.
// Every update bumps the version by one and stamps updated_at; the
// condition requires the item to exist at the expected version.
type updateBuilder struct {
	sets    []string
	removes []string
	names   map[string]string
	values  map[string]types.AttributeValue
	n       int
}

func newUpdateBuilder(expectedVersion int64, now time.Time) *updateBuilder {
	return &updateBuilder{
		sets: []string{"#version = #version + :one", "#updated_at = :updated_at"},
		names: map[string]string{
			"#pk":         AttrPK,
			"#version":    AttrVersion,
			"#updated_at": AttrUpdatedAt,
		},
		values: map[string]types.AttributeValue{
			":one":              &types.AttributeValueMemberN{Value: "1"},
			":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			":updated_at":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
	}
}

func (b *updateBuilder) placeholder(attr string) string {
	nameKey := fmt.Sprintf("#attr%d", b.n)
	b.names[nameKey] = attr
	b.n++
	return nameKey
}

func (b *updateBuilder) set(attr string, value any) error {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", attr, err)
	}
	nameKey := b.placeholder(attr)
	valueKey := ":val" + strings.TrimPrefix(nameKey, "#attr")
	b.values[valueKey] = av
	b.sets = append(b.sets, fmt.Sprintf("%s = %s", nameKey, valueKey))
	return nil
}

func (b *updateBuilder) remove(attr string) {
	b.removes = append(b.removes, b.placeholder(attr))
}

func (b *updateBuilder) updateExpression() string {
	expr := "SET " + strings.Join(b.sets, ", ")
	if len(b.removes) > 0 {
		expr += " REMOVE " + strings.Join(b.removes, ", ")
	}
	return expr
}

func (b *updateBuilder) conditionExpression() string {
	return "attribute_exists(#pk) AND #version = :expected_version"
}

// applyField writes a tri-state patch field: null removes the
// attribute, a value sets it, absent leaves it alone.
func applyField[T any](b *updateBuilder, attr string, f campaignflow.Field[T]) error {
	switch {
	case f.IsNull():
		b.remove(attr)
	case f.IsSet():
		return b.set(attr, f.Get())
	}
	return nil
}

func buildCampaignUpdate(b *updateBuilder, key campaignflow.EntityKey, patch campaignflow.CampaignPatch) error {
	if err := applyField(b, "name", patch.Name); err != nil {
		return err
	}
	if err := applyField(b, "brand_id", patch.BrandID); err != nil {
		return err
	}
	if err := applyField(b, "participants", patch.Participants); err != nil {
		return err
	}
	if err := applyField(b, "callback_id", patch.CallbackID); err != nil {
		return err
	}
	if err := applyField(b, "deleted_at", patch.DeletedAt); err != nil {
		return err
	}
	if status, ok := patch.Status.Value(); ok {
		if err := b.set(AttrStatus, status); err != nil {
			return err
		}
		// The status index partition moves with the status
		return b.set(AttrGSI2PK, statusPartition(recencyPartition(key), string(status)))
	}
	return nil
}

func buildPostUpdate(b *updateBuilder, key campaignflow.EntityKey, patch campaignflow.PostPatch) error {
	if err := applyField(b, "last_error", patch.LastError); err != nil {
		return err
	}
	if err := applyField(b, "content", patch.Content); err != nil {
		return err
	}
	if err := applyField(b, "platform", patch.Platform); err != nil {
		return err
	}
	if err := applyField(b, "deleted_at", patch.DeletedAt); err != nil {
		return err
	}
	if status, ok := patch.Status.Value(); ok {
		if err := b.set(AttrStatus, status); err != nil {
			return err
		}
		return b.set(AttrGSI2PK, statusPartition(recencyPartition(key), string(status)))
	}
	return nil
}
