// Package templates provides email template layout
package templates

import (
	"bytes"
	"html/template"
	"log"
)

type FulfillmentEmailProps struct {
	ProjectTitle string
	DownloadURL  string
}

// fulfillmentEmailTemplate is the compiled template for the fulfillment email
var fulfillmentEmailTemplate = template.Must(template.New("fulfillmentEmail").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>Your storybook is ready</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; -webkit-font-smoothing: antialiased; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 0;">
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="100%" bgcolor="#f4f5f6">
      <tr>
        <td>&nbsp;</td>
        <td style="max-width: 600px; padding: 24px; background-color: #ffffff; border-radius: 8px;">
          <h1 style="font-size: 22px; margin: 0 0 16px;">Your storybook is ready!</h1>
          <p style="margin: 0 0 16px;">The print-ready edition of <strong>{{.ProjectTitle}}</strong> has finished generating.</p>
          <p style="margin: 0 0 24px;">
            <a href="{{.DownloadURL}}" style="display: inline-block; padding: 12px 24px; background-color: #0867ec; color: #ffffff; text-decoration: none; border-radius: 4px;">Download your book</a>
          </p>
          <p style="margin: 0; font-size: 13px; color: #6b7280;">This download link expires, so grab your copy soon. You can always generate a fresh link from your dashboard.</p>
        </td>
        <td>&nbsp;</td>
      </tr>
    </table>
  </body>
</html>
`))

// GetFulfillmentEmailContent renders the fulfillment email HTML.
func GetFulfillmentEmailContent(props FulfillmentEmailProps) string {
	var buf bytes.Buffer
	if err := fulfillmentEmailTemplate.Execute(&buf, props); err != nil {
		log.Printf("Error executing fulfillment email template: %v", err)
		return ""
	}
	return buf.String()
}
