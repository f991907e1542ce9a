// Package vcube implements the provider.Client interface against the
// remote AIGC video service. It covers request signing (a date-scoped
// HMAC-SHA256 chain), the CreateAigcVideoTask and DescribeTaskDetail
// actions, normalization of the provider's status vocabulary, and the
// bounded poll loop used to drive a task to a terminal state.
package vcube
