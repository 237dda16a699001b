package application

import (
	"fmt"

	"ddi-assistant/internal/domain"
)

const examplesText = `# InfoBlox MCP Server Examples

## List Networks
infoblox_list_network(max_results=10)

## Get Specific Network
infoblox_get_network(ref="network/ZG5zLm5ldH...:192.168.1.0/24/default")

## Create Network
infoblox_create_network(data={"network": "10.0.0.0/24", "comment": "Test network"})

## Search for Records
infoblox_search_record_a(filters={"name": "server1"}, max_results=50)

## Search by Extensible Attribute
infoblox_search_network(filters={"*Site": "HQ"})

## Update Record
infoblox_update_record_a(ref="record:a/ZG5z...:192.168.1.10", data={"comment": "Updated"})

## Delete Object
infoblox_delete_network(ref="network/ZG5zLm5ldH...:10.0.0.0/24/default")

## Operator Lookups
ddi_network_info(network="10.0.0.0/24")
ddi_ip_info(ip_address="10.0.0.5")
ddi_zone_info(zone="example.com")
`

var prompts = []domain.Prompt{
	{Name: "infoblox_help", Description: "Get help using the InfoBlox MCP server", Arguments: []domain.PromptArgument{}},
	{Name: "infoblox_examples", Description: "Show example queries for InfoBlox", Arguments: []domain.PromptArgument{}},
}

// ListPrompts returns the static prompts.
func ListPrompts() []domain.Prompt {
	return prompts
}

// GetPrompt returns the messages of a named prompt.
func GetPrompt(name string) (*domain.PromptResult, error) {
	var text string
	switch name {
	case "infoblox_help":
		text = "Help me use the InfoBlox MCP tools. What can I do?"
	case "infoblox_examples":
		text = examplesText
	default:
		return nil, &domain.Error{Code: domain.InvalidParams, Message: fmt.Sprintf("unknown prompt: %s", name)}
	}
	return &domain.PromptResult{
		Messages: []domain.PromptMessage{
			{Role: "user", Content: domain.ContentBlock{Type: "text", Text: text}},
		},
	}, nil
}
