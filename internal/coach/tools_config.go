package coach

import (
	"context"
	"strings"

	"bosun/internal/store"
)

const noConfigChanges = "No configuration changes were needed."

type updateConfigArgs struct {
	BusinessName        *string  `json:"businessName,omitempty" validate:"omitempty,max=200"`
	BusinessDescription *string  `json:"businessDescription,omitempty" validate:"omitempty,max=2000"`
	BusinessHours       *string  `json:"businessHours,omitempty" validate:"omitempty,max=200"`
	Location            *string  `json:"location,omitempty" validate:"omitempty,max=200"`
	Tone                *string  `json:"tone,omitempty" validate:"omitempty,max=200"`
	AIActive            *bool    `json:"aiActive,omitempty"`
	PromptTemplate      *string  `json:"promptTemplate,omitempty" validate:"omitempty,max=8000"`
	Temperature         *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	RateLimitPerMinute  *int     `json:"rateLimitPerMinute,omitempty" validate:"omitempty,gte=1,lte=1000"`
}

func updateConfigTool(d toolDeps) Tool {
	return newTool("update_config",
		"Change the business profile or AI settings. Only pass the fields that should change.",
		toolParams(map[string]any{
			"businessName":        prop("string", "Business name used in replies."),
			"businessDescription": prop("string", "What the business does."),
			"businessHours":       prop("string", "Opening hours."),
			"location":            prop("string", "Address or area."),
			"tone":                prop("string", "Tone of voice for customer replies."),
			"aiActive":            prop("boolean", "Whether the AI answers customers."),
			"promptTemplate":      prop("string", "Custom system prompt with {{placeholders}}; empty string restores the default."),
			"temperature":         prop("number", "Sampling temperature between 0 and 2."),
			"rateLimitPerMinute":  prop("integer", "Maximum AI calls per minute."),
		}),
		func(ctx context.Context, tc ToolContext, a *updateConfigArgs) (string, error) {
			// Read right before merging so the diff reflects the current row.
			ws, err := d.store.GetWorkspace(ctx, tc.WorkspaceID)
			if err != nil {
				return "", err
			}
			settings, err := d.store.GetWorkspaceAISettings(ctx, tc.WorkspaceID)
			if err != nil {
				return "", err
			}

			var patch store.WorkspacePatch
			var changed []string
			diffString := func(field string, next *string, current string, dst **string) {
				if next != nil && *next != current {
					*dst = next
					changed = append(changed, field)
				}
			}
			diffString("businessName", a.BusinessName, ws.BusinessName, &patch.BusinessName)
			diffString("businessDescription", a.BusinessDescription, ws.BusinessDescription, &patch.BusinessDescription)
			diffString("businessHours", a.BusinessHours, ws.BusinessHours, &patch.BusinessHours)
			diffString("location", a.Location, ws.Location, &patch.Location)
			diffString("tone", a.Tone, ws.Tone, &patch.Tone)
			if a.AIActive != nil && *a.AIActive != ws.AIActive {
				patch.AIActive = a.AIActive
				changed = append(changed, "aiActive")
			}
			diffString("promptTemplate", a.PromptTemplate, settings.PromptTemplate, &patch.PromptTemplate)
			if a.Temperature != nil && (settings.Temperature == nil || *settings.Temperature != *a.Temperature) {
				patch.Temperature = a.Temperature
				changed = append(changed, "temperature")
			}
			if a.RateLimitPerMinute != nil && (settings.RateLimitPerMinute == nil || *settings.RateLimitPerMinute != *a.RateLimitPerMinute) {
				patch.RateLimitPerMinute = a.RateLimitPerMinute
				changed = append(changed, "rateLimitPerMinute")
			}

			if len(changed) == 0 {
				return noConfigChanges, nil
			}
			if err := d.store.ApplyWorkspacePatch(ctx, tc.WorkspaceID, patch); err != nil {
				return "", err
			}
			return "Updated " + strings.Join(changed, ", ") + ".", nil
		})
}
