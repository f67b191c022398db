package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams    = orz.NewError(10400, "参数无效")
	ErrPermissionDenied = orz.NewError(10401, "您没有权限查看/修改此数据")

	ErrFightNotFound       = orz.NewError(20000, "对战不存在")
	ErrFightNotWaiting     = orz.NewError(20001, "对战不在等待状态")
	ErrFightNotLive        = orz.NewError(20002, "对战不在进行中")
	ErrCannotJoinOwnFight  = orz.NewError(20003, "不能加入自己创建的对战")
	ErrFightFull           = orz.NewError(20004, "对战人数已满")
	ErrAccountNotLinked    = orz.NewError(20005, "尚未绑定交易所账户")
	ErrInvalidResolution   = orz.NewError(20006, "不支持的判定结果")
	ErrFightAlreadyStarted = orz.NewError(20007, "对战已开始，无法取消")
	ErrSymbolNotAllowed    = orz.NewError(20008, "该交易对不在对战范围内")
)
