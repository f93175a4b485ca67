package c2

import (
	"fmt"
	"net/url"
)

// UpdateConfiguration builds the operation telling an agent to fetch the flow of class from baseURL.
func UpdateConfiguration(baseURL, class string) Operation {
	return Operation{
		Operation: OperationUpdate,
		Operand:   OperandConfiguration,
		Args: map[string]string{
			"location": fmt.Sprintf("%s%s/config?class=%s", baseURL, basePath, url.QueryEscape(class)),
		},
	}
}
