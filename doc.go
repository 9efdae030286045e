// Package meter wraps third-party AI client objects in a transparent
// interception layer that meters the cost of every call. Each intercepted
// call gets a client-kind span; the response shape is recognized by a
// provider strategy, billable quantities are extracted, priced against a
// versioned rate table, and attached to the span before it closes.
//
// The monitor is the dynamic-dispatch boundary: clients whose shape is only
// known at runtime are driven through Invoke with a dotted method path, and
// reflection stays confined to this package plus provider detection.
//
//	client := openai.NewClient(key)
//	mon := meter.Wrap(client)
//	resp, err := mon.Invoke(ctx, "CreateChatCompletion", req)
package meter
