package cdpcontrol

import (
	"context"
	"log/slog"
)

func (c *Client) resolveSession(ctx context.Context, targetID string) (*rawCDP, string, error) {
	session, info, err := c.resolvePageSession(ctx, targetID)
	if err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return nil, "", newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	sessionID, err := c.ensureSession(ctx, cdp, session, info.TargetID)
	if err != nil {
		return nil, "", err
	}
	return cdp, sessionID, nil
}

// clickOnPage dispatches a trusted mouse click at viewport coordinates.
func (c *Client) clickOnPage(ctx context.Context, targetID string, x, y float64) error {
	cdp, sessionID, err := c.resolveSession(ctx, targetID)
	if err != nil {
		return err
	}
	if err := cdp.dispatchMouseClick(ctx, sessionID, x, y); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted mouse click", err)
	}
	return nil
}

// typeCharOnPage types one character into the focused element.
func (c *Client) typeCharOnPage(ctx context.Context, targetID, ch string) error {
	cdp, sessionID, err := c.resolveSession(ctx, targetID)
	if err != nil {
		return err
	}
	if err := cdp.dispatchCharInput(ctx, sessionID, ch); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted character input", err)
	}
	return nil
}

// insertTextOnPage inserts text into the focused element.
func (c *Client) insertTextOnPage(ctx context.Context, targetID, text string) error {
	cdp, sessionID, err := c.resolveSession(ctx, targetID)
	if err != nil {
		return err
	}
	if err := cdp.insertText(ctx, sessionID, text); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted text insertion", err)
	}
	return nil
}

// CaptureScreenshot returns a PNG of the page viewport.
func (c *Client) CaptureScreenshot(ctx context.Context, targetID string) ([]byte, error) {
	cdp, sessionID, err := c.resolveSession(ctx, targetID)
	if err != nil {
		return nil, err
	}
	img, err := cdp.captureScreenshot(ctx, sessionID, "png")
	if err != nil {
		return nil, newError(CodeEvalFailure, "failed to capture screenshot", err)
	}
	slog.Debug("cdpcontrol screenshot captured", "target_id", targetID, "bytes", len(img))
	return img, nil
}
