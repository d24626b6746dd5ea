package nodes

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// runSendmail delivers one email over SMTP. Config fields: host, port,
// username, password, from, to (string or list), subject, body. Credentials
// may arrive sealed under "credentials"; when present they override the
// plain username/password fields.
func (b *builtins) runSendmail(ctx context.Context, config map[string]any, _ map[string]any) (any, error) {
	host, ok := config["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("sendmail node requires an SMTP host")
	}
	from, ok := config["from"].(string)
	if !ok || from == "" {
		return nil, fmt.Errorf("sendmail node requires a from address")
	}
	recipients, err := recipientList(config["to"])
	if err != nil {
		return nil, err
	}

	username, _ := config["username"].(string)
	password, _ := config["password"].(string)
	if sealed, ok := config["credentials"].(string); ok && sealed != "" {
		if b.vault == nil {
			return nil, fmt.Errorf("sendmail node has sealed credentials but no vault is configured")
		}
		creds, err := b.vault.Open(sealed)
		if err != nil {
			return nil, fmt.Errorf("open sendmail credentials: %w", err)
		}
		if u, ok := creds["username"].(string); ok {
			username = u
		}
		if p, ok := creds["password"].(string); ok {
			password = p
		}
	}

	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if port, ok := asFloat(config["port"]); ok && port > 0 {
		opts = append(opts, mail.WithPort(int(port)))
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init SMTP client for %s: %w", host, err)
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients %v: %w", recipients, err)
	}
	if subject, ok := config["subject"].(string); ok {
		msg.Subject(subject)
	}
	if body, ok := config["body"].(string); ok {
		msg.SetBodyString(mail.TypeTextPlain, body)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, fmt.Errorf("send mail via %s: %w", host, err)
	}
	return map[string]any{"status": "sent", "recipients": len(recipients)}, nil
}

func recipientList(v any) ([]string, error) {
	switch to := v.(type) {
	case string:
		if to == "" {
			return nil, fmt.Errorf("sendmail node requires at least one recipient")
		}
		return []string{to}, nil
	case []any:
		out := make([]string, 0, len(to))
		for _, item := range to {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("sendmail recipient must be a string, got %T", item)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("sendmail node requires at least one recipient")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("sendmail node requires to as string or list, got %T", v)
	}
}
