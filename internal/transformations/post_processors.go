package transformations

import (
	"context"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

const appendComment = domain.AppendPrefix + "comment"

// assignEmailFromChildren gives an email-less parent the first child email.
func assignEmailFromChildren(ctx context.Context, env Env, vs *domain.ValueSet) error {
	if domain.Truthy(vs.Parent["email"]) {
		return nil
	}
	for _, child := range vs.Children {
		email, _ := child["email"].(string)
		if strings.TrimSpace(email) != "" {
			vs.Parent["email"] = email
			break
		}
	}
	return nil
}

// mergeComments folds the append accumulator into comment.
func mergeComments(ctx context.Context, env Env, vs *domain.ValueSet) error {
	var parts []string
	if comment := domain.AsString(vs.Parent["comment"]); domain.Truthy(vs.Parent["comment"]) {
		parts = append(parts, comment)
	}
	if extra, ok := vs.Parent[appendComment]; ok {
		if domain.Truthy(extra) {
			parts = append(parts, domain.AsString(extra))
		}
		delete(vs.Parent, appendComment)
	}
	if len(parts) > 0 {
		vs.Parent["comment"] = strings.Join(parts, "\n")
	}
	return nil
}

func setParentIDForChildren(ctx context.Context, env Env, vs *domain.ValueSet) error {
	if env.ParentID == nil {
		return nil
	}
	parentField, ok := env.Schema.ParentField()
	if !ok {
		parentField = "parent_id"
	}
	for _, child := range vs.Children {
		if !domain.Truthy(child[parentField]) {
			child[parentField] = *env.ParentID
		}
	}
	return nil
}

// normalizePhoneNumbers removes spaces and dashes from phone fields.
func normalizePhoneNumbers(ctx context.Context, env Env, vs *domain.ValueSet) error {
	normalizePhones(vs.Parent)
	for _, child := range vs.Children {
		normalizePhones(child)
	}
	return nil
}

func normalizePhones(values domain.Values) {
	replacer := strings.NewReplacer(" ", "", "-", "")
	for _, field := range []string{"mobile", "phone"} {
		if number, ok := values[field].(string); ok && number != "" {
			values[field] = replacer.Replace(number)
		}
	}
}
