package rpc

import (
	"context"

	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/server/services"
	"github.com/dmitrijs2005/linkledger/internal/sessions"
	"github.com/dmitrijs2005/linkledger/internal/wire"
)

func (s *Server) dispatch(ctx context.Context, env *wire.Envelope, origin wire.Origin) *wire.Response {
	resp := wire.NewResponse(env.Header)

	switch req := env.Request.(type) {
	case *wire.LoginRequest:
		return s.login(ctx, resp, env.Via, origin, req)
	case *wire.LogoutRequest:
		return s.logout(ctx, resp, req)
	case *wire.BalanceRequest:
		return s.balance(ctx, resp, req)
	case *wire.TransferRequest:
		return s.transfer(ctx, resp, req)
	case *wire.ListAccountsRequest:
		return s.listAccounts(resp)

	case *wire.AdminCreateRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			return s.admin.Create(ctx, a, req.Name, req.Password, req.Balance)
		})
	case *wire.AdminDeleteRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			return s.admin.Delete(ctx, a, req.Name)
		})
	case *wire.AdminSetBalanceRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			if err := s.admin.SetBalance(ctx, a, req.Name, req.Amount); err != nil {
				return err
			}
			resp.Balance = money.Format(req.Amount)
			return nil
		})
	case *wire.AdminLockRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			return s.admin.Lock(ctx, a, req.Name, req.Reason)
		})
	case *wire.AdminUnlockRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			return s.admin.Unlock(ctx, a, req.Name)
		})
	case *wire.AdminResetCredentialRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			return s.admin.ResetCredential(ctx, a, req.Name, req.Password)
		})
	case *wire.AdminListRequest:
		return s.withAdmin(ctx, resp, req.AdminToken, func(a services.Actor) error {
			list := s.admin.List(ctx, a)
			resp.Details = make([]wire.AccountDetail, 0, len(list))
			for _, acc := range list {
				resp.Details = append(resp.Details, services.Detail(acc))
			}
			resp.Total = len(list)
			return nil
		})

	case *wire.UpdateLocationRequest:
		pos := locator.Position{X: req.X, Y: req.Y, Z: req.Z, Dimension: req.Dimension}
		if err := s.locator.Update(req.Entity, pos, origin.Address); err != nil {
			return resp.Fail(err)
		}
		return resp
	case *wire.GetLocationRequest:
		e, err := s.locator.Get(req.Entity)
		return withData(resp, e, err)
	case *wire.FindNearbyRequest:
		center := locator.Position{X: req.X, Y: req.Y, Z: req.Z, Dimension: req.Dimension}
		matches, err := s.locator.FindNearby(center, req.Radius, req.Limit)
		if err == nil {
			resp.Total = len(matches)
		}
		return withData(resp, matches, err)
	case *wire.ListAllRequest:
		list := s.locator.List()
		resp.Total = len(list)
		return withData(resp, list, nil)
	case *wire.GetHistoryRequest:
		h, err := s.locator.History(req.Entity, req.Limit)
		return withData(resp, h, err)
	case *wire.RemoveEntityRequest:
		if err := s.locator.Remove(req.Entity); err != nil {
			return resp.Fail(err)
		}
		return resp

	default:
		// DecodeRequest only produces the variants above
		return resp.Fail(common.ErrUnknownCommand)
	}
}

func withData(resp *wire.Response, v any, err error) *wire.Response {
	if err != nil {
		return resp.Fail(err)
	}
	if err := resp.SetData(v); err != nil {
		return resp.Fail(err)
	}
	return resp
}

func (s *Server) withAdmin(ctx context.Context, resp *wire.Response, token string, fn func(services.Actor) error) *wire.Response {
	actor, err := s.admin.Authorize(token)
	if err != nil {
		s.logger.Warn(ctx, "admin command rejected", "command", resp.Command)
		return resp.Fail(err)
	}
	if err := fn(actor); err != nil {
		return resp.Fail(err)
	}
	return resp
}

func (s *Server) login(ctx context.Context, resp *wire.Response, via string, origin wire.Origin, req *wire.LoginRequest) *wire.Response {
	so := sessions.Origin{Address: origin.Address, Channel: origin.Channel, Via: via}
	bal, err := s.bank.Login(ctx, so, req.Username, req.Password)
	if err != nil {
		return resp.Fail(err)
	}
	resp.Balance = money.Format(bal)
	return resp
}

func (s *Server) logout(ctx context.Context, resp *wire.Response, req *wire.LogoutRequest) *wire.Response {
	if err := s.bank.Logout(ctx, req.Username, req.Password); err != nil {
		return resp.Fail(err)
	}
	return resp
}

func (s *Server) balance(ctx context.Context, resp *wire.Response, req *wire.BalanceRequest) *wire.Response {
	bal, err := s.bank.Balance(ctx, req.Username, req.Password)
	if err != nil {
		return resp.Fail(err)
	}
	resp.Balance = money.Format(bal)
	return resp
}

func (s *Server) transfer(ctx context.Context, resp *wire.Response, req *wire.TransferRequest) *wire.Response {
	bal, err := s.bank.Transfer(ctx, req.Username, req.Password, req.Recipient, req.Amount)
	if err != nil {
		return resp.Fail(err)
	}
	resp.Balance = money.Format(bal)
	return resp
}

func (s *Server) listAccounts(resp *wire.Response) *wire.Response {
	list := s.bank.ListAccounts()
	resp.Accounts = make([]wire.AccountSummary, 0, len(list))
	for _, a := range list {
		resp.Accounts = append(resp.Accounts, wire.AccountSummary{Name: a.Name, Online: a.Online})
	}
	resp.Total = len(list)
	return resp
}
