// Package n8n is a client for the n8n public REST API.
//
// A Client exposes one service per resource:
//
//	client, err := n8n.New("https://n8n.example.com", apiKey,
//		n8n.WithHTTPConfig(httpclient.DefaultConfig()))
//	workflows, err := client.Workflows.List(ctx, n8n.ListWorkflowsOptions{})
//
// Failures are typed: *errors.TransportError for HTTP and network problems,
// *errors.NotFoundError for 404s and *errors.ValidationError for entities
// rejected locally or by n8n.
package n8n
