package tools

import (
	"context"

	"github.com/go-rod/rod/lib/proto"
)

type pointParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type mouseButtonParams struct {
	Button string `json:"button,omitempty"`
}

type mouseDragParams struct {
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}

type wheelParams struct {
	DeltaX float64 `json:"deltaX,omitempty"`
	DeltaY float64 `json:"deltaY,omitempty"`
}

func mouseTools() []Tool {
	return []Tool{
		tool("mouseMove", "Move the mouse to a point", mouseMove),
		tool("mouseClick", "Click at a point", mouseClick),
		tool("mouseDrag", "Drag between two points", mouseDrag),
		tool("mouseDown", "Press a mouse button", mouseDown),
		tool("mouseUp", "Release a mouse button", mouseUp),
		tool("mouseWheel", "Scroll the mouse wheel", mouseWheel),
	}
}

func mouseMove(ctx context.Context, env *Env, p pointParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Mouse.MoveTo(%v, %v)", p.X, p.Y)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		return tab.Page().Context(ctx).Mouse.MoveTo(proto.Point{X: p.X, Y: p.Y})
	})
}

func mouseClick(ctx context.Context, env *Env, p pointParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("page.Mouse.MoveTo(%v, %v)", p.X, p.Y)
	resp.AddCode(`page.Mouse.Click("left", 1)`)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		mouse := tab.Page().Context(ctx).Mouse
		if err := mouse.MoveTo(proto.Point{X: p.X, Y: p.Y}); err != nil {
			return err
		}
		return mouse.Click(proto.InputMouseButtonLeft, 1)
	})
}

func mouseDrag(ctx context.Context, env *Env, p mouseDragParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("page.Mouse.MoveTo(%v, %v)", p.StartX, p.StartY)
	resp.AddCode(`page.Mouse.Down("left", 1)`)
	resp.AddCodef("page.Mouse.MoveLinear(%v, %v)", p.EndX, p.EndY)
	resp.AddCode(`page.Mouse.Up("left", 1)`)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		mouse := tab.Page().Context(ctx).Mouse
		if err := mouse.MoveTo(proto.Point{X: p.StartX, Y: p.StartY}); err != nil {
			return err
		}
		if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		if err := mouse.MoveLinear(proto.Point{X: p.EndX, Y: p.EndY}, 5); err != nil {
			return err
		}
		return mouse.Up(proto.InputMouseButtonLeft, 1)
	})
}

func mouseDown(ctx context.Context, env *Env, p mouseButtonParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	button, err := mouseButton(p.Button)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Mouse.Down(%q, 1)", button)
	return tab.Page().Context(ctx).Mouse.Down(button, 1)
}

func mouseUp(ctx context.Context, env *Env, p mouseButtonParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	button, err := mouseButton(p.Button)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Mouse.Up(%q, 1)", button)
	return tab.Page().Context(ctx).Mouse.Up(button, 1)
}

func mouseWheel(ctx context.Context, env *Env, p wheelParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Mouse.Scroll(%v, %v, 1)", p.DeltaX, p.DeltaY)
	return tab.Page().Context(ctx).Mouse.Scroll(p.DeltaX, p.DeltaY, 1)
}
