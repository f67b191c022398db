package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/repo"
	"github.com/dushixiang/tfc/internal/xe"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/dushixiang/tfc/pkg/nostd"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountResolver 根据用户ID解析交易所账户
type AccountResolver interface {
	Resolve(ctx context.Context, userID string) (exchange.Account, error)
}

var _ AccountResolver = (*ExchangeAccountService)(nil)

// ExchangeAccountService 交易所账户管理服务
type ExchangeAccountService struct {
	logger *zap.Logger

	*orz.Service
	*repo.ExchangeAccountRepo

	box *nostd.SecretBox
}

// NewExchangeAccountService 创建交易所账户服务
func NewExchangeAccountService(db *gorm.DB, box *nostd.SecretBox, logger *zap.Logger) *ExchangeAccountService {
	return &ExchangeAccountService{
		logger:              logger,
		Service:             orz.NewService(db),
		ExchangeAccountRepo: repo.NewExchangeAccountRepo(db),
		box:                 box,
	}
}

// Resolve 获取用户的交易所账户并解密 Secret
func (s *ExchangeAccountService) Resolve(ctx context.Context, userID string) (exchange.Account, error) {
	account, err := s.ExchangeAccountRepo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchange.Account{}, xe.ErrAccountNotLinked
		}
		return exchange.Account{}, fmt.Errorf("failed to find exchange account: %w", err)
	}

	secret, err := s.box.Open(account.EncryptedSecret)
	if err != nil {
		return exchange.Account{}, fmt.Errorf("failed to decrypt secret for user %s: %w", userID, err)
	}

	return exchange.Account{
		UserID:  account.UserID,
		APIKey:  account.APIKey,
		Secret:  secret,
		Testnet: account.Testnet,
	}, nil
}

// LinkAccountRequest 绑定交易所账户请求
type LinkAccountRequest struct {
	APIKey  string `json:"api_key" validate:"required"`
	Secret  string `json:"secret" validate:"required"`
	Testnet bool   `json:"testnet"`
}

// Link 绑定或更新用户的交易所账户
func (s *ExchangeAccountService) Link(ctx context.Context, userID string, req LinkAccountRequest) error {
	encrypted, err := s.box.Seal(req.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.ExchangeAccountRepo.FindByUserID(ctx, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			existing.APIKey = req.APIKey
			existing.EncryptedSecret = encrypted
			existing.Testnet = req.Testnet
			return s.ExchangeAccountRepo.Save(ctx, &existing)
		}

		account := &models.ExchangeAccount{
			ID:              ulid.Make().String(),
			UserID:          userID,
			APIKey:          req.APIKey,
			EncryptedSecret: encrypted,
			Testnet:         req.Testnet,
		}
		if err := s.ExchangeAccountRepo.Create(ctx, account); err != nil {
			return err
		}
		s.logger.Info("exchange account linked", zap.String("user_id", userID), zap.Bool("testnet", req.Testnet))
		return nil
	})
}
